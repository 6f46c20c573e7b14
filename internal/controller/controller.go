package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/service/chat"
	"github.com/coursecast/server/internal/service/progress"
	"github.com/coursecast/server/pkg/validator"
	"github.com/coursecast/server/pkg/wsrouter"
	"github.com/gorilla/websocket"
)

type iGateway interface {
	Connect(ctx context.Context, transport chat.Transport, participant *domain.Participant) (*chat.Connection, error)
	JoinRoom(ctx context.Context, conn *chat.Connection, courseId string) error
	LeaveRoom(ctx context.Context, conn *chat.Connection, courseId string) error
	Disconnect(ctx context.Context, conn *chat.Connection)
	SendMessage(ctx context.Context, conn *chat.Connection, ev event.SendMessage) (event.ChatMessage, error)
	StartTyping(ctx context.Context, conn *chat.Connection, ev event.Typing) error
	StopTyping(ctx context.Context, conn *chat.Connection, ev event.StopTyping) error
}

type iProgressService interface {
	RecordProgress(ctx context.Context, params *progress.RecordProgressParams) (progress.RecordProgressResponse, error)
	GetCourseProgress(ctx context.Context, userId, courseId string) (progress.GetCourseProgressResponse, error)
}

type iSessionService interface {
	Resolve(r *http.Request) (domain.Participant, error)
}

type Config struct {
	SendBufferSize int
	AllowedOrigins []string
}

type controller struct {
	gateway         iGateway
	progressService iProgressService
	sessionService  iSessionService
	upgrader        websocket.Upgrader
	wsmux           *wsrouter.WSRouter[*chat.Connection]
	validate        *validator.Validator
	sendBufferSize  int
	allowedOrigins  []string
	logger          *slog.Logger
}

func NewController(gateway iGateway, progressService iProgressService, sessionService iSessionService, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		gateway:         gateway,
		progressService: progressService,
		sessionService:  sessionService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:       validator.NewValidator(),
		sendBufferSize: cfg.SendBufferSize,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
