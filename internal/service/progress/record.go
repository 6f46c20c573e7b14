package progress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/coursecast/server/internal/repository/progress"
)

// RecordProgress folds one watch report into the user's video progress and
// recomputes the course percentage, all in one transaction. When CourseId is
// empty the course is taken from the video.
func (s service) RecordProgress(ctx context.Context, params *RecordProgressParams) (RecordProgressResponse, error) {
	if err := validate(params); err != nil {
		return RecordProgressResponse{}, err
	}

	video, course, err := s.resolveAccess(ctx, params.UserId, params.VideoId, params.CourseId)
	if err != nil {
		return RecordProgressResponse{}, err
	}

	duration := params.TotalDuration
	if duration <= 0 {
		duration = video.Duration
	}

	var resp RecordProgressResponse
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		now := s.now().UTC()

		cp, err := s.repo.GetOrCreateCourseProgress(ctx, &progress.GetOrCreateCourseProgressParams{
			UserId:   params.UserId,
			CourseId: course.Id,
			Now:      now,
		})
		if err != nil {
			return fmt.Errorf("failed to get course progress: %w", err)
		}

		vp, err := s.repo.GetVideoProgress(ctx, &progress.GetVideoProgressParams{
			ProgressId: cp.Id,
			VideoId:    video.Id,
		})
		isNew := errors.Is(err, progress.ErrVideoProgressNotFound)
		if err != nil && !isNew {
			return fmt.Errorf("failed to get video progress: %w", err)
		}
		if isNew {
			vp = progress.VideoProgress{ProgressId: cp.Id, VideoId: video.Id}
		}

		vp.WatchedSeconds = math.Max(vp.WatchedSeconds, params.WatchedSeconds)
		if params.Position != nil {
			vp.LastPosition = *params.Position
		} else {
			vp.LastPosition = params.WatchedSeconds
		}
		explicit := params.IsCompleted != nil && *params.IsCompleted
		vp.Completed = vp.Completed || explicit || isCompleted(vp.WatchedSeconds, duration)
		vp.UpdatedAt = now

		if isNew {
			err = s.repo.CreateVideoProgress(ctx, &vp)
		} else {
			err = s.repo.UpdateVideoProgress(ctx, &vp)
		}
		if err != nil {
			return fmt.Errorf("failed to save video progress: %w", err)
		}

		completed, err := s.repo.CountCompletedVideos(ctx, &progress.CountCompletedVideosParams{
			ProgressId: cp.Id,
			CourseId:   course.Id,
		})
		if err != nil {
			return fmt.Errorf("failed to count completed videos: %w", err)
		}

		total, err := s.repo.CountCourseVideos(ctx, course.Id)
		if err != nil {
			return fmt.Errorf("failed to count course videos: %w", err)
		}

		pct := percentage(completed, total)
		if err := s.repo.UpdateCourseProgress(ctx, &progress.UpdateCourseProgressParams{
			ProgressId:   cp.Id,
			Progress:     pct,
			LastAccessed: now,
		}); err != nil {
			return fmt.Errorf("failed to update course progress: %w", err)
		}

		resp = RecordProgressResponse{
			VideoProgress:  vp,
			CourseProgress: CourseProgressSummary{Id: cp.Id, Progress: pct},
		}

		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record progress", "video_id", params.VideoId, "error", err)
		return RecordProgressResponse{}, transient("failed to record progress", err)
	}

	s.logger.DebugContext(ctx, "progress recorded",
		"course_id", course.Id,
		"video_id", video.Id,
		"completed", resp.VideoProgress.Completed,
		"progress", resp.CourseProgress.Progress,
	)

	return resp, nil
}

// GetCourseProgress returns the user's progress on a course. A user who has
// not watched anything yet reads as zero percent.
func (s service) GetCourseProgress(ctx context.Context, userId, courseId string) (GetCourseProgressResponse, error) {
	if userId == "" || courseId == "" {
		return GetCourseProgressResponse{}, ErrInvalidParams
	}

	if _, err := s.authorize(ctx, userId, courseId); err != nil {
		return GetCourseProgressResponse{}, err
	}

	cp, err := s.repo.GetCourseProgress(ctx, userId, courseId)
	if errors.Is(err, progress.ErrCourseProgressNotFound) {
		return GetCourseProgressResponse{
			CourseProgress: progress.CourseProgress{UserId: userId, CourseId: courseId},
			VideoProgress:  []progress.VideoProgress{},
		}, nil
	}
	if err != nil {
		return GetCourseProgressResponse{}, transient("failed to get course progress", err)
	}

	list, err := s.repo.ListVideoProgress(ctx, cp.Id)
	if err != nil {
		return GetCourseProgressResponse{}, transient("failed to list video progress", err)
	}
	if list == nil {
		list = []progress.VideoProgress{}
	}

	return GetCourseProgressResponse{CourseProgress: cp, VideoProgress: list}, nil
}

func validate(params *RecordProgressParams) error {
	switch {
	case params.UserId == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidParams)
	case params.VideoId == "":
		return fmt.Errorf("%w: video id is required", ErrInvalidParams)
	case params.WatchedSeconds < 0 || math.IsNaN(params.WatchedSeconds) || math.IsInf(params.WatchedSeconds, 0):
		return fmt.Errorf("%w: watched seconds must be a non-negative number", ErrInvalidParams)
	case params.TotalDuration < 0 || math.IsNaN(params.TotalDuration) || math.IsInf(params.TotalDuration, 0):
		return fmt.Errorf("%w: total duration must be a non-negative number", ErrInvalidParams)
	case params.Position != nil && (*params.Position < 0 || math.IsNaN(*params.Position)):
		return fmt.Errorf("%w: position must be a non-negative number", ErrInvalidParams)
	}

	return nil
}
