package gormrepo

import (
	"context"

	"github.com/coursecast/server/internal/repository/progress"
)

func (r repo) GetCourse(ctx context.Context, courseId string) (progress.Course, error) {
	r.logger.DebugContext(ctx, "called", "course_id", courseId)

	var course progress.Course
	if err := r.conn(ctx).Where("id = ?", courseId).Take(&course).Error; err != nil {
		err = notFound(err, progress.ErrCourseNotFound)
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.Course{}, err
	}

	return course, nil
}

func (r repo) GetVideo(ctx context.Context, videoId string) (progress.Video, error) {
	r.logger.DebugContext(ctx, "called", "video_id", videoId)

	var video progress.Video
	if err := r.conn(ctx).Where("id = ?", videoId).Take(&video).Error; err != nil {
		err = notFound(err, progress.ErrVideoNotFound)
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.Video{}, err
	}

	return video, nil
}

func (r repo) CountCourseVideos(ctx context.Context, courseId string) (int64, error) {
	r.logger.DebugContext(ctx, "called", "course_id", courseId)

	var count int64
	if err := r.conn(ctx).Model(&progress.Video{}).Where("course_id = ?", courseId).Count(&count).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return 0, err
	}

	return count, nil
}

// IsEnrolled reports whether the student holds an enrollment that was not cancelled.
func (r repo) IsEnrolled(ctx context.Context, studentId, courseId string) (bool, error) {
	r.logger.DebugContext(ctx, "called", "student_id", studentId, "course_id", courseId)

	var count int64
	if err := r.conn(ctx).Model(&progress.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status <> ?", studentId, courseId, progress.EnrollmentCancelled).
		Count(&count).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return false, err
	}

	return count > 0, nil
}
