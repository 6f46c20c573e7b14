package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HandlerFunc[C, T any] func(ctx context.Context, conn C, payload T) error

type Middleware[C any] func(next HandlerFunc[C, any]) HandlerFunc[C, any]

type route[C any] struct {
	decode  func(json.RawMessage) (any, error)
	handler HandlerFunc[C, any]
}

// WSRouter dispatches websocket messages to handlers registered per message type.
// C is the connection type passed through to handlers.
type WSRouter[C any] struct {
	routes      map[string]route[C]
	middlewares []Middleware[C]
}

func New[C any]() *WSRouter[C] {
	return &WSRouter[C]{routes: make(map[string]route[C])}
}

// Use appends middlewares. The first one registered is the outermost.
func (r *WSRouter[C]) Use(mw ...Middleware[C]) {
	r.middlewares = append(r.middlewares, mw...)
}

// Handle registers h for messageType. The payload is decoded into T before
// the middleware chain runs; a missing payload decodes as JSON null.
func Handle[C, T any](r *WSRouter[C], messageType string, h HandlerFunc[C, T]) {
	r.routes[messageType] = route[C]{
		decode: func(raw json.RawMessage) (any, error) {
			if len(raw) == 0 {
				raw = json.RawMessage("null")
			}

			var payload T
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}

			return payload, nil
		},
		handler: func(ctx context.Context, conn C, payload any) error {
			return h(ctx, conn, payload.(T))
		},
	}
}

func (r *WSRouter[C]) Types() []string {
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	sort.Strings(types)

	return types
}

// Serve decodes a single frame and runs the matching handler.
func (r *WSRouter[C]) Serve(ctx context.Context, conn C, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	ctx = context.WithValue(ctx, messageTypeKey, msg.Type)

	rt, ok := r.routes[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}

	payload, err := rt.decode(msg.Payload)
	if err != nil {
		return err
	}

	h := rt.handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	return h(ctx, conn, payload)
}
