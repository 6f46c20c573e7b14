package connection

import "errors"

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
	ErrLimitReached  = errors.New("connection limit reached")
)

type Conn interface {
	Id() string
	Close() error
}
