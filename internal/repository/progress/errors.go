package progress

import "errors"

var (
	ErrCourseNotFound         = errors.New("course not found")
	ErrVideoNotFound          = errors.New("video not found")
	ErrCourseProgressNotFound = errors.New("course progress not found")
	ErrVideoProgressNotFound  = errors.New("video progress not found")
)
