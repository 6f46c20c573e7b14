package gormrepo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coursecast/server/internal/repository/progress"
	"gorm.io/gorm"
)

type contextKey int

const (
	txCtxKey contextKey = iota
)

type repo struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepo(db *gorm.DB, logger *slog.Logger) *repo {
	return &repo{
		db:     db,
		logger: logger,
	}
}

// Transaction runs fn inside a database transaction. Repository calls made
// with the ctx passed to fn join that transaction.
func (r repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txCtxKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txCtxKey, tx))
	})
}

func (r repo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txCtxKey).(*gorm.DB); ok {
		return tx
	}

	return r.db.WithContext(ctx)
}

// Migrate creates or updates every table the repository touches.
func (r repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&progress.Course{},
		&progress.Video{},
		&progress.Enrollment{},
		&progress.CourseProgress{},
		&progress.VideoProgress{},
	)
}

func notFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}

	return err
}
