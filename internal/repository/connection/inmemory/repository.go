package inmemory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/coursecast/server/internal/repository/connection"
)

type repo struct {
	conns  map[string]connection.Conn
	users  map[string]map[string]struct{}
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:  make(map[string]connection.Conn),
		users:  make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Add indexes conn under its id and, when userId is not empty, under the user.
// A positive userLimit caps the live connections one user may hold.
func (r *repo) Add(ctx context.Context, conn connection.Conn, userId string, userLimit int) error {
	r.logger.DebugContext(ctx, "called", "conn_id", conn.Id(), "user_id", userId, "user_limit", userLimit)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.Id()]; ok {
		r.logger.DebugContext(ctx, "returned", "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	if userId != "" && userLimit > 0 && len(r.users[userId]) >= userLimit {
		r.logger.DebugContext(ctx, "returned", "error", connection.ErrLimitReached)
		return connection.ErrLimitReached
	}

	r.conns[conn.Id()] = conn
	if userId != "" {
		ids, ok := r.users[userId]
		if !ok {
			ids = make(map[string]struct{})
			r.users[userId] = ids
		}
		ids[conn.Id()] = struct{}{}
	}

	return nil
}

func (r *repo) Remove(ctx context.Context, connId, userId string) error {
	r.logger.DebugContext(ctx, "called", "conn_id", connId, "user_id", userId)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connId]; !ok {
		r.logger.DebugContext(ctx, "returned", "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	delete(r.conns, connId)
	if ids, ok := r.users[userId]; ok {
		delete(ids, connId)
		if len(ids) == 0 {
			delete(r.users, userId)
		}
	}

	return nil
}

// GetByUser returns the ids of the live connections of userId, sorted.
func (r *repo) GetByUser(ctx context.Context, userId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users[userId]))
	for id := range r.users[userId] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *repo) List(ctx context.Context) []connection.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]connection.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}

	return conns
}
