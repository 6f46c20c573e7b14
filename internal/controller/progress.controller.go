package controller

import (
	"fmt"
	"net/http"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/service/progress"
	"github.com/coursecast/server/pkg/rest"
	"github.com/go-chi/chi/v5"
)

type updateProgressInput struct {
	VideoId        string   `json:"videoId" validate:"required"`
	CourseId       string   `json:"courseId" validate:"required"`
	WatchedSeconds *float64 `json:"watchedSeconds" validate:"required,gte=0"`
	IsCompleted    *bool    `json:"isCompleted"`
	TotalDuration  float64  `json:"totalDuration" validate:"gte=0"`
	Position       *float64 `json:"position" validate:"omitempty,gte=0"`
}

func (c controller) updateProgress(w http.ResponseWriter, r *http.Request) {
	participant, ok := c.getParticipantFromCtx(r.Context())
	if !ok {
		c.writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var input updateProgressInput
	if err := rest.ReadJSON(w, r, &input); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	if details, ok := c.validate.Validate(input); !ok {
		c.writeValidationError(w, r, details)
		return
	}

	resp, err := c.progressService.RecordProgress(r.Context(), &progress.RecordProgressParams{
		UserId:         participant.UserId,
		VideoId:        input.VideoId,
		CourseId:       input.CourseId,
		WatchedSeconds: *input.WatchedSeconds,
		Position:       input.Position,
		IsCompleted:    input.IsCompleted,
		TotalDuration:  input.TotalDuration,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, r, http.StatusOK, rest.Envelope{
		"success":        true,
		"videoProgress":  resp.VideoProgress,
		"courseProgress": resp.CourseProgress,
	})
}

type recordVideoProgressInput struct {
	VideoId        string   `json:"videoId" validate:"required"`
	WatchedSeconds *float64 `json:"watchedSeconds" validate:"required,gte=0"`
	Position       *float64 `json:"position" validate:"required,gte=0"`
	Completed      *bool    `json:"completed"`
}

// recordVideoProgress takes the course from the video and the duration from
// the catalogue.
func (c controller) recordVideoProgress(w http.ResponseWriter, r *http.Request) {
	participant, ok := c.getParticipantFromCtx(r.Context())
	if !ok {
		c.writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	var input recordVideoProgressInput
	if err := rest.ReadJSON(w, r, &input); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	if details, ok := c.validate.Validate(input); !ok {
		c.writeValidationError(w, r, details)
		return
	}

	resp, err := c.progressService.RecordProgress(r.Context(), &progress.RecordProgressParams{
		UserId:         participant.UserId,
		VideoId:        input.VideoId,
		WatchedSeconds: *input.WatchedSeconds,
		Position:       input.Position,
		IsCompleted:    input.Completed,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, r, http.StatusOK, rest.Envelope{
		"success":        true,
		"videoProgress":  resp.VideoProgress,
		"courseProgress": resp.CourseProgress,
	})
}

func (c controller) getCourseProgress(w http.ResponseWriter, r *http.Request) {
	participant, ok := c.getParticipantFromCtx(r.Context())
	if !ok {
		c.writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	courseId := chi.URLParam(r, "course-id")

	resp, err := c.progressService.GetCourseProgress(r.Context(), participant.UserId, courseId)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.writeJSON(w, r, http.StatusOK, resp)
}
