package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("temporarily unavailable")
)

var (
	ErrUnauthenticated = fmt.Errorf("%w: not authenticated", ErrAuthorization)
	ErrForbidden       = fmt.Errorf("%w: forbidden", ErrAuthorization)
)
