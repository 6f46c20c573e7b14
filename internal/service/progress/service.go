package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/repository/progress"
)

// CompletionThreshold is the share of a video, in percent, that marks it completed.
const CompletionThreshold = 90

var (
	ErrInvalidParams = fmt.Errorf("%w: invalid progress update", domain.ErrValidation)
	ErrNotEnrolled   = fmt.Errorf("%w: not enrolled in this course", domain.ErrForbidden)
	ErrVideoNotFound = fmt.Errorf("%w: video", domain.ErrNotFound)
)

type iProgressRepo interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	GetCourse(ctx context.Context, courseId string) (progress.Course, error)
	GetVideo(ctx context.Context, videoId string) (progress.Video, error)
	IsEnrolled(ctx context.Context, studentId, courseId string) (bool, error)
	CountCourseVideos(ctx context.Context, courseId string) (int64, error)
	GetOrCreateCourseProgress(ctx context.Context, params *progress.GetOrCreateCourseProgressParams) (progress.CourseProgress, error)
	GetCourseProgress(ctx context.Context, userId, courseId string) (progress.CourseProgress, error)
	UpdateCourseProgress(ctx context.Context, params *progress.UpdateCourseProgressParams) error
	GetVideoProgress(ctx context.Context, params *progress.GetVideoProgressParams) (progress.VideoProgress, error)
	CreateVideoProgress(ctx context.Context, vp *progress.VideoProgress) error
	UpdateVideoProgress(ctx context.Context, vp *progress.VideoProgress) error
	CountCompletedVideos(ctx context.Context, params *progress.CountCompletedVideosParams) (int64, error)
	ListVideoProgress(ctx context.Context, progressId string) ([]progress.VideoProgress, error)
}

type service struct {
	repo   iProgressRepo
	now    func() time.Time
	logger *slog.Logger
}

type Config struct {
	Now func() time.Time
}

func NewService(repo iProgressRepo, cfg *Config, logger *slog.Logger) *service {
	s := service{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
	if cfg != nil && cfg.Now != nil {
		s.now = cfg.Now
	}

	return &s
}

// resolveAccess checks that the user may record progress on the video before
// anything about the video is revealed: an enrollment that is not cancelled or
// tutoring the course. Without a course id the course comes from the video, and
// an unknown video is reported as forbidden.
func (s service) resolveAccess(ctx context.Context, userId, videoId, courseId string) (progress.Video, progress.Course, error) {
	if courseId == "" {
		video, err := s.repo.GetVideo(ctx, videoId)
		if err != nil {
			if errors.Is(err, progress.ErrVideoNotFound) {
				return progress.Video{}, progress.Course{}, ErrNotEnrolled
			}
			return progress.Video{}, progress.Course{}, transient("failed to get video", err)
		}

		course, err := s.authorize(ctx, userId, video.CourseId)
		if err != nil {
			return progress.Video{}, progress.Course{}, err
		}

		return video, course, nil
	}

	course, err := s.authorize(ctx, userId, courseId)
	if err != nil {
		return progress.Video{}, progress.Course{}, err
	}

	video, err := s.repo.GetVideo(ctx, videoId)
	if err != nil {
		if errors.Is(err, progress.ErrVideoNotFound) {
			return progress.Video{}, progress.Course{}, ErrVideoNotFound
		}
		return progress.Video{}, progress.Course{}, transient("failed to get video", err)
	}

	if video.CourseId != course.Id {
		return progress.Video{}, progress.Course{}, ErrVideoNotFound
	}

	return video, course, nil
}

// authorize returns the course when the user is enrolled in it or tutors it.
// An unknown course is indistinguishable from one the user may not access.
func (s service) authorize(ctx context.Context, userId, courseId string) (progress.Course, error) {
	enrolled, err := s.repo.IsEnrolled(ctx, userId, courseId)
	if err != nil {
		return progress.Course{}, transient("failed to check enrollment", err)
	}

	course, err := s.repo.GetCourse(ctx, courseId)
	if err != nil {
		if errors.Is(err, progress.ErrCourseNotFound) {
			return progress.Course{}, ErrNotEnrolled
		}
		return progress.Course{}, transient("failed to get course", err)
	}

	if !enrolled && course.TutorId != userId {
		return progress.Course{}, ErrNotEnrolled
	}

	return course, nil
}

func transient(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrTransient, err)
}

// isCompleted applies the completion rule. A duration of zero never completes
// a video on its own.
func isCompleted(watchedSeconds, duration float64) bool {
	if duration <= 0 {
		return false
	}

	return watchedSeconds*100 >= duration*CompletionThreshold
}

func percentage(completed, total int64) float64 {
	if total <= 0 {
		return 0
	}

	pct := float64(completed) / float64(total) * 100

	return math.Max(0, math.Min(100, pct))
}
