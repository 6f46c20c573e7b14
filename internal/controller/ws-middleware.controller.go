package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/coursecast/server/internal/service/chat"
	"github.com/coursecast/server/pkg/ctxlogger"
	"github.com/coursecast/server/pkg/wsrouter"
)

func (c controller) wsRequestIdWSMw() wsrouter.Middleware[*chat.Connection] {
	return func(next wsrouter.HandlerFunc[*chat.Connection, any]) wsrouter.HandlerFunc[*chat.Connection, any] {
		return func(ctx context.Context, conn *chat.Connection, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, conn, payload)
		}
	}
}

func (c controller) loggerWSMw() wsrouter.Middleware[*chat.Connection] {
	return func(next wsrouter.HandlerFunc[*chat.Connection, any]) wsrouter.HandlerFunc[*chat.Connection, any] {
		return func(ctx context.Context, conn *chat.Connection, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", wsrouter.GetMessageTypeFromCtx(ctx)))
			c.logger.DebugContext(ctx, "websocket message received", "course_id", conn.CourseId())

			start := time.Now()

			err := next(ctx, conn, payload)

			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
				"error", err,
			)

			return err
		}
	}
}
