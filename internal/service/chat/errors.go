package chat

import (
	"errors"
	"fmt"

	"github.com/coursecast/server/internal/domain"
)

var (
	ErrRegistryClosed = errors.New("registry closed")
	ErrEmptyContent   = fmt.Errorf("%w: message content is empty", domain.ErrValidation)
	ErrContentTooLong = fmt.Errorf("%w: message content is too long", domain.ErrValidation)
	ErrEmptyCourseId  = fmt.Errorf("%w: course id is empty", domain.ErrValidation)
	ErrNotInRoom      = errors.New("connection has not joined a course")
	ErrCourseMismatch = errors.New("course id does not match joined course")
	ErrAnonymous      = fmt.Errorf("%w: anonymous connections cannot do this", domain.ErrUnauthenticated)
	ErrConnClosed     = errors.New("connection closed")

	ErrTooManyConnections = fmt.Errorf("%w: too many connections", domain.ErrForbidden)
)
