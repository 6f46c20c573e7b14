package progress

import "time"

type GetOrCreateCourseProgressParams struct {
	UserId   string
	CourseId string
	Now      time.Time
}

type GetVideoProgressParams struct {
	ProgressId string
	VideoId    string
}

type UpdateCourseProgressParams struct {
	ProgressId   string
	Progress     float64
	LastAccessed time.Time
}

type CountCompletedVideosParams struct {
	ProgressId string
	CourseId   string
}
