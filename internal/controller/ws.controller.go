package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/service/session"
	"github.com/coursecast/server/pkg/ctxlogger"
	"github.com/gorilla/websocket"
)

// serveWS upgrades the request and runs the connection until it drops.
// Requests without a session connect anonymously; a bad token is rejected.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var participant *domain.Participant
	p, err := c.sessionService.Resolve(r)
	switch {
	case err == nil:
		participant = &p
		ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", p.UserId))
	case errors.Is(err, session.ErrNoSession):
	default:
		c.writeError(w, r, err)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}

	cl := newClient(conn, c.sendBufferSize, c.logger)

	wsConn, err := c.gateway.Connect(ctx, cl, participant)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to connect client", "error", err)
		code := websocket.CloseInternalServerErr
		if errors.Is(err, domain.ErrAuthorization) {
			code = websocket.ClosePolicyViolation
		}
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, "forbidden"), time.Now().Add(writeWait))
		conn.Close()
		return
	}
	ctx = ctxlogger.AppendCtx(ctx, slog.String("conn_id", wsConn.Id()))
	defer c.gateway.Disconnect(context.WithoutCancel(ctx), wsConn)

	go cl.writePump(ctx)
	defer cl.Close()

	cl.readPump(ctx, func(ctx context.Context, data []byte) {
		if err := c.wsmux.Serve(ctx, wsConn, data); err != nil {
			c.logger.WarnContext(ctx, "dropped websocket message", "error", err)
		}
	})
}
