package progress

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentPaused    EnrollmentStatus = "PAUSED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Course, Video and Enrollment are owned by the catalogue and only read here.
type Course struct {
	Id      string `gorm:"column:id;primaryKey"`
	TutorId string `gorm:"column:tutor_id;index"`
	Title   string `gorm:"column:title"`
}

func (Course) TableName() string { return "courses" }

type Video struct {
	Id       string  `gorm:"column:id;primaryKey"`
	CourseId string  `gorm:"column:course_id;index"`
	Title    string  `gorm:"column:title"`
	Duration float64 `gorm:"column:duration"`
	Position int     `gorm:"column:position"`
}

func (Video) TableName() string { return "videos" }

type Enrollment struct {
	Id        string           `gorm:"column:id;primaryKey"`
	StudentId string           `gorm:"column:student_id;uniqueIndex:idx_enrollment_student_course"`
	CourseId  string           `gorm:"column:course_id;uniqueIndex:idx_enrollment_student_course"`
	Status    EnrollmentStatus `gorm:"column:status;default:ACTIVE"`
}

func (Enrollment) TableName() string { return "enrollments" }

type CourseProgress struct {
	Id           string    `gorm:"column:id;primaryKey" json:"id"`
	UserId       string    `gorm:"column:user_id;uniqueIndex:idx_course_progress_user_course" json:"userId"`
	CourseId     string    `gorm:"column:course_id;uniqueIndex:idx_course_progress_user_course" json:"courseId"`
	Progress     float64   `gorm:"column:progress" json:"progress"`
	LastAccessed time.Time `gorm:"column:last_accessed" json:"lastAccessed"`
}

func (CourseProgress) TableName() string { return "course_progress" }

type VideoProgress struct {
	Id             string    `gorm:"column:id;primaryKey" json:"id"`
	ProgressId     string    `gorm:"column:progress_id;uniqueIndex:idx_video_progress_progress_video" json:"progressId"`
	VideoId        string    `gorm:"column:video_id;uniqueIndex:idx_video_progress_progress_video" json:"videoId"`
	WatchedSeconds float64   `gorm:"column:watched_seconds" json:"watchedSeconds"`
	LastPosition   float64   `gorm:"column:last_position" json:"lastPosition"`
	Completed      bool      `gorm:"column:completed" json:"completed"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (VideoProgress) TableName() string { return "video_progress" }
