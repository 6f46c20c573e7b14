package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursecast/server/pkg/ctxlogger"
	"github.com/go-chi/chi/v5/middleware"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"duration_us", time.Since(start).Microseconds(),
		)
	})
}

// sessionMw rejects requests without a valid session and stores the
// participant in the request context.
func (c controller) sessionMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participant, err := c.sessionService.Resolve(r)
		if err != nil {
			c.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), participantCtxKey, participant)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", participant.UserId))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
