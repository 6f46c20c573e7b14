package controller

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/service/chat"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	defaultSendBufferSize = 256
)

var ErrSlowConsumer = errors.New("outbound queue full")

// client owns a websocket connection. Reads happen on the caller's goroutine
// and writes on a single writePump goroutine fed by egress.
type client struct {
	conn   *websocket.Conn
	egress chan event.Outbound
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, bufferSize int, logger *slog.Logger) *client {
	if bufferSize <= 0 {
		bufferSize = defaultSendBufferSize
	}

	return &client{
		conn:   conn,
		egress: make(chan event.Outbound, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues ev without blocking. A full queue kicks the client.
func (c *client) Send(ev event.Outbound) error {
	select {
	case <-c.done:
		return chat.ErrConnClosed
	default:
	}

	select {
	case c.egress <- ev:
		return nil
	case <-c.done:
		return chat.ErrConnClosed
	default:
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})

	return nil
}

func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		case ev := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.DebugContext(ctx, "failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.DebugContext(ctx, "failed to write ping", "error", err)
				return
			}
		}
	}
}

// readPump hands every text frame to handle until the connection fails.
func (c *client) readPump(ctx context.Context, handle func(ctx context.Context, data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.DebugContext(ctx, "client closed connection")
			case errors.As(err, &ne) && ne.Timeout():
				c.logger.InfoContext(ctx, "client timed out")
			default:
				c.logger.DebugContext(ctx, "failed to read message", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		handle(ctx, data)
	}
}
