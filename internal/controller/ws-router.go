package controller

import (
	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/service/chat"
	"github.com/coursecast/server/pkg/wsrouter"
)

// handle registers h under the message type of its payload.
func handle[T event.ClientEvent](mux *wsrouter.WSRouter[*chat.Connection], h wsrouter.HandlerFunc[*chat.Connection, T]) {
	var zero T
	wsrouter.Handle(mux, zero.Type(), h)
}

func (c controller) getWSRouter() *wsrouter.WSRouter[*chat.Connection] {
	mux := wsrouter.New[*chat.Connection]()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())

	// room
	handle(mux, c.handleJoinCourse)
	handle(mux, c.handleLeaveCourse)

	// chat
	handle(mux, c.handleSendMessage)

	// presence
	handle(mux, c.handleTyping)
	handle(mux, c.handleStopTyping)

	return mux
}
