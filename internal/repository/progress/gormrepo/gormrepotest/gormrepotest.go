// Package gormrepotest opens throwaway sqlite databases with the progress schema.
package gormrepotest

import (
	"context"
	"fmt"
	"testing"

	"github.com/coursecast/server/internal/repository/progress"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an in-memory database with every progress table migrated. A
// single connection keeps the in-memory database alive and serialises writers.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.WithContext(context.Background()).AutoMigrate(
		&progress.Course{},
		&progress.Video{},
		&progress.Enrollment{},
		&progress.CourseProgress{},
		&progress.VideoProgress{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

type Fixture struct {
	Course      progress.Course
	Videos      []progress.Video
	Enrollments []progress.Enrollment
}

// Seed creates a course owned by tutorId with videoCount videos of duration
// seconds each, and active enrollments for studentIds.
func Seed(t testing.TB, db *gorm.DB, tutorId string, videoCount int, duration float64, studentIds ...string) Fixture {
	t.Helper()

	f := Fixture{
		Course: progress.Course{Id: uuid.NewString(), TutorId: tutorId, Title: "Course"},
	}
	if err := db.Create(&f.Course).Error; err != nil {
		t.Fatalf("failed to create course: %v", err)
	}

	for i := 0; i < videoCount; i++ {
		v := progress.Video{
			Id:       uuid.NewString(),
			CourseId: f.Course.Id,
			Title:    fmt.Sprintf("Video %d", i+1),
			Duration: duration,
			Position: i + 1,
		}
		if err := db.Create(&v).Error; err != nil {
			t.Fatalf("failed to create video: %v", err)
		}
		f.Videos = append(f.Videos, v)
	}

	for _, studentId := range studentIds {
		e := progress.Enrollment{
			Id:        uuid.NewString(),
			StudentId: studentId,
			CourseId:  f.Course.Id,
			Status:    progress.EnrollmentActive,
		}
		if err := db.Create(&e).Error; err != nil {
			t.Fatalf("failed to create enrollment: %v", err)
		}
		f.Enrollments = append(f.Enrollments, e)
	}

	return f
}
