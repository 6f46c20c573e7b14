package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/repository/connection"
	"github.com/google/uuid"
)

// Transport is the outbound side of a client socket.
type Transport interface {
	Send(event.Outbound) error
	Close() error
}

type iRegistry interface {
	Join(ctx context.Context, courseId string, conn Conn) error
	Leave(ctx context.Context, courseId, connId string) bool
	Close()
}

type iConnRepo interface {
	Add(ctx context.Context, conn connection.Conn, userId string, userLimit int) error
	GetByUser(ctx context.Context, userId string) []string
	Remove(ctx context.Context, connId, userId string) error
	List(ctx context.Context) []connection.Conn
}

type iPresence interface {
	MarkTyping(ctx context.Context, courseId, userName, connId string, ttl time.Duration) bool
	ClearTyping(ctx context.Context, courseId, userName string) bool
	ClearConnection(ctx context.Context, courseId, connId string)
	Stop()
}

type iRelay interface {
	Send(ctx context.Context, params *SendParams) (event.ChatMessage, error)
}

type Connection struct {
	id          string
	participant *domain.Participant
	transport   Transport

	mu       sync.Mutex
	courseId string
}

func (c *Connection) Id() string { return c.id }

func (c *Connection) Send(ev event.Outbound) error { return c.transport.Send(ev) }

func (c *Connection) Close() error { return c.transport.Close() }

// Participant returns nil for anonymous connections.
func (c *Connection) Participant() *domain.Participant { return c.participant }

func (c *Connection) CourseId() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.courseId
}

func (c *Connection) setCourseId(courseId string) {
	c.mu.Lock()
	c.courseId = courseId
	c.mu.Unlock()
}

func (c *Connection) userId() string {
	if c.participant == nil {
		return ""
	}

	return c.participant.UserId
}

type GatewayConfig struct {
	AllowAnonymous bool
	// MaxConnectionsPerUser caps concurrent sockets of one signed-in user, 0 means no cap.
	MaxConnectionsPerUser int
}

type Gateway struct {
	registry       iRegistry
	presence       iPresence
	relay          iRelay
	connRepo       iConnRepo
	allowAnonymous bool
	maxPerUser     int
	logger         *slog.Logger
}

func NewGateway(registry iRegistry, presence iPresence, relay iRelay, connRepo iConnRepo, cfg *GatewayConfig, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry:       registry,
		presence:       presence,
		relay:          relay,
		connRepo:       connRepo,
		allowAnonymous: cfg.AllowAnonymous,
		maxPerUser:     cfg.MaxConnectionsPerUser,
		logger:         logger,
	}
}

// Connect registers a live connection. A nil participant yields an
// anonymous connection.
func (g *Gateway) Connect(ctx context.Context, transport Transport, participant *domain.Participant) (*Connection, error) {
	conn := &Connection{
		id:          uuid.NewString(),
		participant: participant,
		transport:   transport,
	}

	if err := g.connRepo.Add(ctx, conn, conn.userId(), g.maxPerUser); err != nil {
		if errors.Is(err, connection.ErrLimitReached) {
			return nil, ErrTooManyConnections
		}
		return nil, fmt.Errorf("failed to add connection: %w", err)
	}

	attrs := []any{"conn_id", conn.id, "user_id", conn.userId()}
	if participant != nil {
		attrs = append(attrs, "user_connections", len(g.connRepo.GetByUser(ctx, participant.UserId)))
	}
	g.logger.InfoContext(ctx, "client connected", attrs...)

	return conn, nil
}

// JoinRoom moves conn into courseId. Joining the current room is a no-op.
func (g *Gateway) JoinRoom(ctx context.Context, conn *Connection, courseId string) error {
	if courseId == "" {
		return ErrEmptyCourseId
	}

	if conn.participant == nil && !g.allowAnonymous {
		return ErrAnonymous
	}

	current := conn.CourseId()
	if current == courseId {
		return nil
	}

	if current != "" {
		g.leave(ctx, conn, current)
	}

	if err := g.registry.Join(ctx, courseId, conn); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	conn.setCourseId(courseId)

	g.logger.InfoContext(ctx, "joined course", "conn_id", conn.id, "course_id", courseId)

	return nil
}

func (g *Gateway) LeaveRoom(ctx context.Context, conn *Connection, courseId string) error {
	if courseId == "" {
		return ErrEmptyCourseId
	}

	if conn.CourseId() != courseId {
		return nil
	}

	g.leave(ctx, conn, courseId)
	g.logger.InfoContext(ctx, "left course", "conn_id", conn.id, "course_id", courseId)

	return nil
}

// Disconnect releases everything the connection holds. Safe to call more than once.
func (g *Gateway) Disconnect(ctx context.Context, conn *Connection) {
	if courseId := conn.CourseId(); courseId != "" {
		g.leave(ctx, conn, courseId)
	}

	if err := g.connRepo.Remove(ctx, conn.id, conn.userId()); err != nil {
		if !errors.Is(err, connection.ErrNotFound) {
			g.logger.WarnContext(ctx, "failed to remove connection", "conn_id", conn.id, "error", err)
		}
		return
	}

	g.logger.InfoContext(ctx, "client disconnected", "conn_id", conn.id)
}

func (g *Gateway) SendMessage(ctx context.Context, conn *Connection, ev event.SendMessage) (event.ChatMessage, error) {
	courseId, err := g.activeCourse(conn, ev.CourseId)
	if err != nil {
		return event.ChatMessage{}, err
	}

	return g.relay.Send(ctx, &SendParams{
		CourseId:     courseId,
		Content:      ev.Content,
		Sender:       *conn.participant,
		SenderConnId: conn.id,
	})
}

func (g *Gateway) StartTyping(ctx context.Context, conn *Connection, ev event.Typing) error {
	courseId, err := g.activeCourse(conn, ev.CourseId)
	if err != nil {
		return err
	}

	g.presence.MarkTyping(ctx, courseId, conn.participant.UserName, conn.id, 0)

	return nil
}

func (g *Gateway) StopTyping(ctx context.Context, conn *Connection, ev event.StopTyping) error {
	courseId, err := g.activeCourse(conn, ev.CourseId)
	if err != nil {
		return err
	}

	g.presence.ClearTyping(ctx, courseId, conn.participant.UserName)

	return nil
}

// Shutdown closes every live connection and cancels typing timers. The
// connections' own read loops run Disconnect as they unwind.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.presence.Stop()

	conns := g.connRepo.List(ctx)
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			g.logger.DebugContext(ctx, "failed to close connection", "conn_id", conn.Id(), "error", err)
		}
	}

	g.registry.Close()
	g.logger.InfoContext(ctx, "gateway stopped", "connections", len(conns))
}

func (g *Gateway) leave(ctx context.Context, conn *Connection, courseId string) {
	g.presence.ClearConnection(ctx, courseId, conn.id)
	g.registry.Leave(ctx, courseId, conn.id)
	conn.setCourseId("")
}

// activeCourse resolves the room a sending event applies to.
func (g *Gateway) activeCourse(conn *Connection, payloadCourseId string) (string, error) {
	if conn.participant == nil {
		return "", ErrAnonymous
	}

	courseId := conn.CourseId()
	if courseId == "" {
		return "", ErrNotInRoom
	}

	if payloadCourseId != "" && payloadCourseId != courseId {
		return "", fmt.Errorf("%w: %s", ErrCourseMismatch, payloadCourseId)
	}

	return courseId, nil
}
