package controller

import (
	"errors"
	"net/http"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/pkg/rest"
	"github.com/coursecast/server/pkg/validator"
	"github.com/google/uuid"
)

func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c controller) statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := c.statusFromError(err)

	message := err.Error()
	switch {
	case status == http.StatusUnauthorized:
		message = "unauthenticated"
	case status == http.StatusForbidden:
		message = "forbidden"
	}

	if status >= http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
		message = http.StatusText(status)
	} else {
		c.logger.DebugContext(r.Context(), "request rejected", "status", status, "error", err)
	}

	if err := rest.WriteJSON(w, status, rest.Envelope{"error": message}, nil); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func (c controller) writeValidationError(w http.ResponseWriter, r *http.Request, details []validator.ValidationError) {
	c.logger.DebugContext(r.Context(), "invalid request", "details", details)

	if err := rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{
		"error":   domain.ErrValidation.Error(),
		"details": details,
	}, nil); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func (c controller) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := rest.WriteJSON(w, status, data, nil); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}
