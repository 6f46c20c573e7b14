package chat

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/event"
	"github.com/google/uuid"
)

const DefaultMessageMaxLength = 2000

type SendParams struct {
	CourseId     string
	Content      string
	Sender       domain.Participant
	SenderConnId string
}

type Relay struct {
	broadcaster iBroadcaster
	clock       Clock
	maxLength   int
	logger      *slog.Logger
}

type RelayConfig struct {
	MaxLength int
	Clock     Clock
}

func NewRelay(broadcaster iBroadcaster, cfg *RelayConfig, logger *slog.Logger) *Relay {
	r := &Relay{
		broadcaster: broadcaster,
		clock:       RealClock(),
		maxLength:   DefaultMessageMaxLength,
		logger:      logger,
	}

	if cfg != nil {
		if cfg.MaxLength > 0 {
			r.maxLength = cfg.MaxLength
		}
		if cfg.Clock != nil {
			r.clock = cfg.Clock
		}
	}

	return r
}

// Send stamps the message with an id and server time and delivers it to every
// member of the course, the sender included.
func (r *Relay) Send(ctx context.Context, params *SendParams) (event.ChatMessage, error) {
	if params.CourseId == "" {
		return event.ChatMessage{}, ErrEmptyCourseId
	}

	if strings.TrimSpace(params.Content) == "" {
		return event.ChatMessage{}, ErrEmptyContent
	}

	if utf8.RuneCountInString(params.Content) > r.maxLength {
		return event.ChatMessage{}, ErrContentTooLong
	}

	msg := event.ChatMessage{
		Id:        uuid.NewString(),
		CourseId:  params.CourseId,
		Content:   params.Content,
		UserId:    params.Sender.UserId,
		UserName:  params.Sender.UserName,
		UserImage: params.Sender.UserImage,
		UserRole:  params.Sender.Role,
		Timestamp: r.clock.Now().UTC(),
	}

	r.logger.DebugContext(ctx, "relaying message", "course_id", msg.CourseId, "message_id", msg.Id)
	r.broadcaster.Broadcast(ctx, params.CourseId, event.NewMessage(msg), "")

	return msg, nil
}
