package controller

import (
	"context"
	"fmt"

	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/service/chat"
)

func (c controller) handleJoinCourse(ctx context.Context, conn *chat.Connection, input event.JoinCourse) error {
	if err := input.Validate(); err != nil {
		return fmt.Errorf("invalid join: %w", err)
	}

	if err := c.gateway.JoinRoom(ctx, conn, input.CourseId); err != nil {
		return fmt.Errorf("failed to join course: %w", err)
	}

	return nil
}

func (c controller) handleLeaveCourse(ctx context.Context, conn *chat.Connection, input event.LeaveCourse) error {
	if err := input.Validate(); err != nil {
		return fmt.Errorf("invalid leave: %w", err)
	}

	if err := c.gateway.LeaveRoom(ctx, conn, input.CourseId); err != nil {
		return fmt.Errorf("failed to leave course: %w", err)
	}

	return nil
}

func (c controller) handleSendMessage(ctx context.Context, conn *chat.Connection, input event.SendMessage) error {
	if _, err := c.gateway.SendMessage(ctx, conn, input); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (c controller) handleTyping(ctx context.Context, conn *chat.Connection, input event.Typing) error {
	if err := c.gateway.StartTyping(ctx, conn, input); err != nil {
		return fmt.Errorf("failed to start typing: %w", err)
	}

	return nil
}

func (c controller) handleStopTyping(ctx context.Context, conn *chat.Connection, input event.StopTyping) error {
	if err := c.gateway.StopTyping(ctx, conn, input); err != nil {
		return fmt.Errorf("failed to stop typing: %w", err)
	}

	return nil
}
