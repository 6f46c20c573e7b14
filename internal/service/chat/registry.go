package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/coursecast/server/internal/event"
)

// Conn is a single client connection as seen by the chat services. Send must
// not block: it enqueues onto the connection's ordered outbound queue.
type Conn interface {
	Id() string
	Send(event.Outbound) error
}

type room struct {
	mu      sync.Mutex
	members map[string]Conn
}

// Registry maps course ids to the connections currently joined to them.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// Join adds conn to the room of courseId, creating the room on first join.
func (r *Registry) Join(ctx context.Context, courseId string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	rm, ok := r.rooms[courseId]
	if !ok {
		rm = &room{members: make(map[string]Conn)}
		r.rooms[courseId] = rm
		r.logger.DebugContext(ctx, "room created", "course_id", courseId)
	}

	rm.mu.Lock()
	rm.members[conn.Id()] = conn
	rm.mu.Unlock()

	return nil
}

// Leave removes the connection from the room and deletes the room once empty.
// It reports whether the connection was a member.
func (r *Registry) Leave(ctx context.Context, courseId, connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[courseId]
	if !ok {
		return false
	}

	rm.mu.Lock()
	_, member := rm.members[connId]
	delete(rm.members, connId)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, courseId)
		r.logger.DebugContext(ctx, "room deleted", "course_id", courseId)
	}

	return member
}

// Broadcast enqueues ev for every member of the room except excludeConnId.
// The room lock is held for the whole fan-out so members observe a single
// order of events per room.
func (r *Registry) Broadcast(ctx context.Context, courseId string, ev event.Outbound, excludeConnId string) {
	r.mu.RLock()
	rm, ok := r.rooms[courseId]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	for id, conn := range rm.members {
		if id == excludeConnId {
			continue
		}

		if err := conn.Send(ev); err != nil {
			r.logger.WarnContext(ctx, "failed to send event",
				"course_id", courseId,
				"conn_id", id,
				"type", ev.Type,
				"error", err,
			)
		}
	}
}

func (r *Registry) Members(courseId string) []string {
	r.mu.RLock()
	rm, ok := r.rooms[courseId]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	rm.mu.Unlock()

	sort.Strings(ids)

	return ids
}

func (r *Registry) IsMember(courseId, connId string) bool {
	r.mu.RLock()
	rm, ok := r.rooms[courseId]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok = rm.members[connId]

	return ok
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// Close drops every room. Joins after Close fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.rooms = make(map[string]*room)
}
