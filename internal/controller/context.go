package controller

import (
	"context"

	"github.com/coursecast/server/internal/domain"
)

type contextKey int

const (
	participantCtxKey contextKey = iota
)

func (c controller) getParticipantFromCtx(ctx context.Context) (domain.Participant, bool) {
	participant, ok := ctx.Value(participantCtxKey).(domain.Participant)

	return participant, ok
}
