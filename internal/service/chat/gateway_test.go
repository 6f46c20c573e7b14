package chat

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/repository/connection/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway  *Gateway
	registry *Registry
	presence *Presence
	clock    *fakeClock
}

func newGatewayFixture(t *testing.T, allowAnonymous bool) *gatewayFixture {
	t.Helper()

	logger := slog.Default()
	clock := newFakeClock()
	registry := NewRegistry(logger)
	presence := NewPresence(registry, &PresenceConfig{Clock: clock}, logger)
	relay := NewRelay(registry, &RelayConfig{Clock: clock}, logger)
	gateway := NewGateway(registry, presence, relay, inmemory.NewRepo(logger), &GatewayConfig{AllowAnonymous: allowAnonymous}, logger)

	return &gatewayFixture{gateway: gateway, registry: registry, presence: presence, clock: clock}
}

func participant(id, name string) *domain.Participant {
	return &domain.Participant{UserId: id, UserName: name, Role: domain.RoleStudent}
}

func TestGatewayMessageFlow(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	ta, tb, tc := &fakeTransport{}, &fakeTransport{}, &fakeTransport{}
	a, err := f.gateway.Connect(ctx, ta, participant("u1", "ann"))
	require.NoError(t, err)
	b, err := f.gateway.Connect(ctx, tb, participant("u2", "bob"))
	require.NoError(t, err)
	c, err := f.gateway.Connect(ctx, tc, participant("u3", "cid"))
	require.NoError(t, err)

	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, b, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, c, "course-2"))

	msg, err := f.gateway.SendMessage(ctx, a, event.SendMessage{
		CourseId: "course-1",
		Content:  "hello",
		UserId:   "spoofed",
		UserName: "mallory",
		UserRole: domain.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.UserId, "identity comes from the session")
	assert.Equal(t, "ann", msg.UserName)
	assert.Equal(t, domain.RoleStudent, msg.UserRole)

	assert.Equal(t, []event.Outbound{event.NewMessage(msg)}, ta.Events())
	assert.Equal(t, []event.Outbound{event.NewMessage(msg)}, tb.Events())
	assert.Empty(t, tc.Events())
}

func TestGatewaySendRequiresRoom(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	a, err := f.gateway.Connect(ctx, &fakeTransport{}, participant("u1", "ann"))
	require.NoError(t, err)

	_, err = f.gateway.SendMessage(ctx, a, event.SendMessage{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotInRoom)

	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))

	_, err = f.gateway.SendMessage(ctx, a, event.SendMessage{CourseId: "course-2", Content: "hi"})
	assert.ErrorIs(t, err, ErrCourseMismatch)

	_, err = f.gateway.SendMessage(ctx, a, event.SendMessage{CourseId: "course-1", Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestGatewayAnonymous(t *testing.T) {
	ctx := context.Background()

	f := newGatewayFixture(t, true)
	tAnon, tUser := &fakeTransport{}, &fakeTransport{}
	anon, err := f.gateway.Connect(ctx, tAnon, nil)
	require.NoError(t, err)
	user, err := f.gateway.Connect(ctx, tUser, participant("u1", "ann"))
	require.NoError(t, err)

	require.NoError(t, f.gateway.JoinRoom(ctx, anon, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, user, "course-1"))

	_, err = f.gateway.SendMessage(ctx, anon, event.SendMessage{CourseId: "course-1", Content: "hi"})
	assert.ErrorIs(t, err, ErrAnonymous)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	assert.ErrorIs(t, f.gateway.StartTyping(ctx, anon, event.Typing{CourseId: "course-1"}), ErrAnonymous)

	_, err = f.gateway.SendMessage(ctx, user, event.SendMessage{CourseId: "course-1", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{event.TypeNewMessage}, tAnon.Types(), "anonymous connections still receive")

	strict := newGatewayFixture(t, false)
	anon, err = strict.gateway.Connect(ctx, &fakeTransport{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, strict.gateway.JoinRoom(ctx, anon, "course-1"), ErrAnonymous)
	assert.Equal(t, 0, strict.registry.RoomCount())
}

func TestGatewayJoinSwitchesRoom(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	a, err := f.gateway.Connect(ctx, &fakeTransport{}, participant("u1", "ann"))
	require.NoError(t, err)

	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	assert.Equal(t, []string{a.Id()}, f.registry.Members("course-1"))

	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-2"))
	assert.Empty(t, f.registry.Members("course-1"))
	assert.Equal(t, []string{a.Id()}, f.registry.Members("course-2"))
	assert.Equal(t, 1, f.registry.RoomCount())
	assert.Equal(t, "course-2", a.CourseId())

	require.NoError(t, f.gateway.LeaveRoom(ctx, a, "course-1"), "leaving a room not joined is a no-op")
	assert.Equal(t, "course-2", a.CourseId())

	require.NoError(t, f.gateway.LeaveRoom(ctx, a, "course-2"))
	assert.Equal(t, 0, f.registry.RoomCount())
	assert.Empty(t, a.CourseId())
}

func TestGatewayTyping(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	ta, tb := &fakeTransport{}, &fakeTransport{}
	a, err := f.gateway.Connect(ctx, ta, participant("u1", "ann"))
	require.NoError(t, err)
	b, err := f.gateway.Connect(ctx, tb, participant("u2", "bob"))
	require.NoError(t, err)
	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, b, "course-1"))

	require.NoError(t, f.gateway.StartTyping(ctx, a, event.Typing{CourseId: "course-1", UserName: "ignored"}))
	assert.Equal(t, []event.Outbound{
		event.UserTyping("ann"),
		event.TypingUsersSnapshot("course-1", []string{"ann"}),
	}, tb.Events())
	assert.Equal(t, []string{event.TypeTypingUsers}, ta.Types(), "the typer does not see its own user-typing")

	tb.Reset()
	require.NoError(t, f.gateway.StopTyping(ctx, a, event.StopTyping{}))
	assert.Equal(t, []string{event.TypeUserStopTyping, event.TypeTypingUsers}, tb.Types())

	f.clock.Advance(time.Minute)
	assert.Len(t, tb.Events(), 2)
}

func TestGatewayDisconnectClearsTyping(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	ta, tb := &fakeTransport{}, &fakeTransport{}
	a, err := f.gateway.Connect(ctx, ta, participant("u1", "ann"))
	require.NoError(t, err)
	b, err := f.gateway.Connect(ctx, tb, participant("u2", "bob"))
	require.NoError(t, err)
	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	require.NoError(t, f.gateway.JoinRoom(ctx, b, "course-1"))

	require.NoError(t, f.gateway.StartTyping(ctx, a, event.Typing{CourseId: "course-1"}))
	tb.Reset()

	f.gateway.Disconnect(ctx, a)
	assert.Equal(t, []string{event.TypeUserStopTyping, event.TypeTypingUsers}, tb.Types())
	assert.Empty(t, f.presence.Typing("course-1"))
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, []string{b.Id()}, f.registry.Members("course-1"))

	f.clock.Advance(time.Minute)
	assert.Len(t, tb.Events(), 2, "no stop event after the timer was cancelled")

	f.gateway.Disconnect(ctx, a)
	f.gateway.Disconnect(ctx, b)
	assert.Equal(t, 0, f.registry.RoomCount())
}

func TestGatewayShutdown(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t, true)

	ta, tb := &fakeTransport{}, &fakeTransport{}
	a, err := f.gateway.Connect(ctx, ta, participant("u1", "ann"))
	require.NoError(t, err)
	_, err = f.gateway.Connect(ctx, tb, nil)
	require.NoError(t, err)
	require.NoError(t, f.gateway.JoinRoom(ctx, a, "course-1"))
	require.NoError(t, f.gateway.StartTyping(ctx, a, event.Typing{CourseId: "course-1"}))

	f.gateway.Shutdown(ctx)

	assert.True(t, ta.closed)
	assert.True(t, tb.closed)
	assert.Equal(t, 0, f.clock.Pending())
	assert.Equal(t, 0, f.registry.RoomCount())
}

func TestGatewayConnectionLimit(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	registry := NewRegistry(logger)
	presence := NewPresence(registry, &PresenceConfig{Clock: newFakeClock()}, logger)
	relay := NewRelay(registry, nil, logger)
	gateway := NewGateway(registry, presence, relay, inmemory.NewRepo(logger), &GatewayConfig{
		AllowAnonymous:        true,
		MaxConnectionsPerUser: 1,
	}, logger)

	first, err := gateway.Connect(ctx, &fakeTransport{}, participant("u1", "ann"))
	require.NoError(t, err)

	_, err = gateway.Connect(ctx, &fakeTransport{}, participant("u1", "ann"))
	assert.ErrorIs(t, err, ErrTooManyConnections)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = gateway.Connect(ctx, &fakeTransport{}, participant("u2", "bob"))
	require.NoError(t, err)
	_, err = gateway.Connect(ctx, &fakeTransport{}, nil)
	require.NoError(t, err)
	_, err = gateway.Connect(ctx, &fakeTransport{}, nil)
	require.NoError(t, err, "anonymous connections are not capped")

	gateway.Disconnect(ctx, first)
	_, err = gateway.Connect(ctx, &fakeTransport{}, participant("u1", "ann"))
	require.NoError(t, err, "slot is freed on disconnect")
}
