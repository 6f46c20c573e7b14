package progress

import "github.com/coursecast/server/internal/repository/progress"

type RecordProgressParams struct {
	UserId         string
	VideoId        string
	CourseId       string
	WatchedSeconds float64
	Position       *float64
	IsCompleted    *bool
	TotalDuration  float64
}

type CourseProgressSummary struct {
	Id       string  `json:"id"`
	Progress float64 `json:"progress"`
}

type RecordProgressResponse struct {
	VideoProgress  progress.VideoProgress `json:"videoProgress"`
	CourseProgress CourseProgressSummary  `json:"courseProgress"`
}

type GetCourseProgressResponse struct {
	CourseProgress progress.CourseProgress  `json:"courseProgress"`
	VideoProgress  []progress.VideoProgress `json:"videoProgress"`
}
