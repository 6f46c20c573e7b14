package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coursecast/server/internal/event"
	"golang.org/x/exp/maps"
)

const DefaultTypingTTL = 3 * time.Second

type iBroadcaster interface {
	Broadcast(ctx context.Context, courseId string, ev event.Outbound, excludeConnId string)
}

type typingEntry struct {
	connId   string
	deadline time.Time
	timer    Timer
	gen      uint64
}

// Presence tracks who is typing in each course. An entry expires ttl after
// its last renewal unless it is cleared first.
type Presence struct {
	mu          sync.Mutex
	typing      map[string]map[string]*typingEntry
	gen         uint64
	stopped     bool
	ttl         time.Duration
	clock       Clock
	broadcaster iBroadcaster
	logger      *slog.Logger
}

type PresenceConfig struct {
	TTL   time.Duration
	Clock Clock
}

func NewPresence(broadcaster iBroadcaster, cfg *PresenceConfig, logger *slog.Logger) *Presence {
	p := &Presence{
		typing:      make(map[string]map[string]*typingEntry),
		ttl:         DefaultTypingTTL,
		clock:       RealClock(),
		broadcaster: broadcaster,
		logger:      logger,
	}

	if cfg != nil {
		if cfg.TTL > 0 {
			p.ttl = cfg.TTL
		}
		if cfg.Clock != nil {
			p.clock = cfg.Clock
		}
	}

	return p
}

// MarkTyping starts or renews the typing entry of userName in courseId for
// ttl, or for the configured TTL when ttl is not positive. It reports whether
// this call started a new entry; only then are user-typing and a typing-users
// snapshot broadcast.
func (p *Presence) MarkTyping(ctx context.Context, courseId, userName, connId string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = p.ttl
	}

	p.mu.Lock()

	if p.stopped {
		p.mu.Unlock()
		return false
	}

	users, ok := p.typing[courseId]
	if !ok {
		users = make(map[string]*typingEntry)
		p.typing[courseId] = users
	}

	entry, renewing := users[userName]
	if renewing {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		users[userName] = entry
	}

	p.gen++
	gen := p.gen
	entry.connId = connId
	entry.gen = gen
	entry.deadline = p.clock.Now().Add(ttl)
	entry.timer = p.clock.AfterFunc(ttl, func() {
		p.expire(courseId, userName, gen)
	})

	var snapshot []string
	if !renewing {
		snapshot = p.namesLocked(courseId)
	}
	p.mu.Unlock()

	if renewing {
		return false
	}

	p.logger.DebugContext(ctx, "user started typing", "course_id", courseId, "user_name", userName)
	p.broadcaster.Broadcast(ctx, courseId, event.UserTyping(userName), connId)
	p.broadcaster.Broadcast(ctx, courseId, event.TypingUsersSnapshot(courseId, snapshot), "")

	return true
}

// ClearTyping removes the entry of userName. It reports whether an entry existed.
func (p *Presence) ClearTyping(ctx context.Context, courseId, userName string) bool {
	p.mu.Lock()
	entry, ok := p.removeLocked(courseId, userName)
	var snapshot []string
	if ok {
		snapshot = p.namesLocked(courseId)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	p.notifyStopped(ctx, courseId, userName, entry.connId, snapshot)

	return true
}

// ClearConnection removes every entry owned by connId in courseId. Used on
// leave and disconnect, where the remaining members still need the stop events.
func (p *Presence) ClearConnection(ctx context.Context, courseId, connId string) {
	p.mu.Lock()
	var names []string
	for name, entry := range p.typing[courseId] {
		if entry.connId == connId {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		p.removeLocked(courseId, name)
	}
	snapshot := p.namesLocked(courseId)
	p.mu.Unlock()

	for _, name := range names {
		p.notifyStopped(ctx, courseId, name, connId, snapshot)
	}
}

// Typing returns the sorted names currently typing in courseId.
func (p *Presence) Typing(courseId string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.namesLocked(courseId)
}

// Deadline returns when the entry of userName expires.
func (p *Presence) Deadline(courseId, userName string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.typing[courseId][userName]
	if !ok {
		return time.Time{}, false
	}

	return entry.deadline, true
}

// Stop cancels every pending timer without emitting events.
func (p *Presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	for _, users := range p.typing {
		for _, entry := range users {
			entry.timer.Stop()
		}
	}
	p.typing = make(map[string]map[string]*typingEntry)
}

func (p *Presence) expire(courseId, userName string, gen uint64) {
	p.mu.Lock()
	entry, ok := p.typing[courseId][userName]
	if !ok || entry.gen != gen {
		// cleared or renewed after this timer fired
		p.mu.Unlock()
		return
	}
	p.removeLocked(courseId, userName)
	snapshot := p.namesLocked(courseId)
	p.mu.Unlock()

	ctx := context.Background()
	p.logger.DebugContext(ctx, "typing expired", "course_id", courseId, "user_name", userName)
	p.notifyStopped(ctx, courseId, userName, entry.connId, snapshot)
}

func (p *Presence) notifyStopped(ctx context.Context, courseId, userName, connId string, snapshot []string) {
	p.logger.DebugContext(ctx, "user stopped typing", "course_id", courseId, "user_name", userName)
	p.broadcaster.Broadcast(ctx, courseId, event.UserStopTyping(), connId)
	p.broadcaster.Broadcast(ctx, courseId, event.TypingUsersSnapshot(courseId, snapshot), "")
}

func (p *Presence) removeLocked(courseId, userName string) (*typingEntry, bool) {
	users, ok := p.typing[courseId]
	if !ok {
		return nil, false
	}

	entry, ok := users[userName]
	if !ok {
		return nil, false
	}

	entry.timer.Stop()
	delete(users, userName)
	if len(users) == 0 {
		delete(p.typing, courseId)
	}

	return entry, true
}

func (p *Presence) namesLocked(courseId string) []string {
	names := maps.Keys(p.typing[courseId])
	sort.Strings(names)

	return names
}
