package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coursecast/server/internal/event"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "course:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix

	defaultBufferSize = 1024
)

var ErrQueueFull = errors.New("publish queue full")

type iBroadcaster interface {
	Broadcast(ctx context.Context, courseId string, ev event.Outbound, excludeConnId string)
}

type envelope struct {
	Origin   string          `json:"origin"`
	CourseId string          `json:"course_id"`
	Exclude  string          `json:"exclude,omitempty"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Fanout delivers events to local members and mirrors them to other
// instances over redis pub/sub. Remote delivery is best effort and only
// happens while Run holds a subscription. typing-users snapshots describe
// this instance's typers and are never mirrored.
type Fanout struct {
	rc         *redis.Client
	local      iBroadcaster
	instanceId string
	queue      chan envelope
	ready      chan struct{}
	readyOnce  sync.Once
	running    atomic.Bool
	logger     *slog.Logger
}

func NewFanout(rc *redis.Client, local iBroadcaster, bufferSize int, logger *slog.Logger) *Fanout {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &Fanout{
		rc:         rc,
		local:      local,
		instanceId: uuid.NewString(),
		queue:      make(chan envelope, bufferSize),
		ready:      make(chan struct{}),
		logger:     logger,
	}
}

func (f *Fanout) getChannel(courseId string) string {
	return channelPrefix + courseId + channelSuffix
}

func (f *Fanout) courseIdFromChannel(channel string) string {
	return strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), channelSuffix)
}

// Ready is closed once the subscription is confirmed.
func (f *Fanout) Ready() <-chan struct{} {
	return f.ready
}

func (f *Fanout) Broadcast(ctx context.Context, courseId string, ev event.Outbound, excludeConnId string) {
	f.local.Broadcast(ctx, courseId, ev, excludeConnId)

	if ev.Type == event.TypeTypingUsers || !f.running.Load() {
		return
	}

	env := envelope{
		Origin:   f.instanceId,
		CourseId: courseId,
		Exclude:  excludeConnId,
		Type:     ev.Type,
	}

	if ev.Payload != nil {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			f.logger.WarnContext(ctx, "failed to marshal event payload", "type", ev.Type, "error", err)
			return
		}
		env.Payload = payload
	}

	select {
	case f.queue <- env:
	default:
		f.logger.WarnContext(ctx, "dropping remote event", "course_id", courseId, "type", ev.Type, "error", ErrQueueFull)
	}
}

// Run subscribes to every course channel and publishes queued events until
// ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	pubsub := f.rc.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	f.running.Store(true)
	defer f.running.Store(false)
	f.readyOnce.Do(func() { close(f.ready) })
	f.logger.InfoContext(ctx, "fanout subscribed", "pattern", channelPattern, "instance_id", f.instanceId)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.publish(ctx)
	}()
	defer wg.Wait()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.deliver(ctx, msg)
		}
	}
}

func (f *Fanout) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-f.queue:
			data, err := json.Marshal(env)
			if err != nil {
				f.logger.WarnContext(ctx, "failed to marshal envelope", "error", err)
				continue
			}

			if err := f.rc.Publish(ctx, f.getChannel(env.CourseId), data).Err(); err != nil {
				f.logger.WarnContext(ctx, "failed to publish event", "course_id", env.CourseId, "type", env.Type, "error", err)
			}
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		f.logger.WarnContext(ctx, "failed to unmarshal envelope", "channel", msg.Channel, "error", err)
		return
	}

	if env.Origin == f.instanceId {
		return
	}

	courseId := env.CourseId
	if courseId == "" {
		courseId = f.courseIdFromChannel(msg.Channel)
	}

	ev := event.Outbound{Type: env.Type}
	if len(env.Payload) > 0 {
		ev.Payload = env.Payload
	}

	f.logger.DebugContext(ctx, "remote event received", "course_id", courseId, "type", env.Type, "origin", env.Origin)
	f.local.Broadcast(ctx, courseId, ev, env.Exclude)
}
