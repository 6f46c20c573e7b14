package gormrepo

import (
	"context"

	"github.com/coursecast/server/internal/repository/progress"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// GetOrCreateCourseProgress inserts the row if absent and returns it locked
// for update when called inside a transaction.
func (r repo) GetOrCreateCourseProgress(ctx context.Context, params *progress.GetOrCreateCourseProgressParams) (progress.CourseProgress, error) {
	r.logger.DebugContext(ctx, "called", "params", params)
	db := r.conn(ctx)

	created := progress.CourseProgress{
		Id:           uuid.NewString(),
		UserId:       params.UserId,
		CourseId:     params.CourseId,
		LastAccessed: params.Now,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(&created).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.CourseProgress{}, err
	}

	var cp progress.CourseProgress
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", params.UserId, params.CourseId).
		Take(&cp).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.CourseProgress{}, err
	}

	return cp, nil
}

func (r repo) GetCourseProgress(ctx context.Context, userId, courseId string) (progress.CourseProgress, error) {
	r.logger.DebugContext(ctx, "called", "user_id", userId, "course_id", courseId)

	var cp progress.CourseProgress
	if err := r.conn(ctx).Where("user_id = ? AND course_id = ?", userId, courseId).Take(&cp).Error; err != nil {
		err = notFound(err, progress.ErrCourseProgressNotFound)
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.CourseProgress{}, err
	}

	return cp, nil
}

func (r repo) UpdateCourseProgress(ctx context.Context, params *progress.UpdateCourseProgressParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	res := r.conn(ctx).Model(&progress.CourseProgress{}).
		Where("id = ?", params.ProgressId).
		Updates(map[string]any{
			"progress":      params.Progress,
			"last_accessed": params.LastAccessed,
		})
	if res.Error != nil {
		r.logger.DebugContext(ctx, "returned", "error", res.Error)
		return res.Error
	}

	if res.RowsAffected == 0 {
		r.logger.DebugContext(ctx, "returned", "error", progress.ErrCourseProgressNotFound)
		return progress.ErrCourseProgressNotFound
	}

	return nil
}

func (r repo) GetVideoProgress(ctx context.Context, params *progress.GetVideoProgressParams) (progress.VideoProgress, error) {
	r.logger.DebugContext(ctx, "called", "params", params)

	var vp progress.VideoProgress
	if err := r.conn(ctx).
		Where("progress_id = ? AND video_id = ?", params.ProgressId, params.VideoId).
		Take(&vp).Error; err != nil {
		err = notFound(err, progress.ErrVideoProgressNotFound)
		r.logger.DebugContext(ctx, "returned", "error", err)
		return progress.VideoProgress{}, err
	}

	return vp, nil
}

func (r repo) CreateVideoProgress(ctx context.Context, vp *progress.VideoProgress) error {
	r.logger.DebugContext(ctx, "called", "params", vp)

	if vp.Id == "" {
		vp.Id = uuid.NewString()
	}

	if err := r.conn(ctx).Create(vp).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r repo) UpdateVideoProgress(ctx context.Context, vp *progress.VideoProgress) error {
	r.logger.DebugContext(ctx, "called", "params", vp)

	res := r.conn(ctx).Model(&progress.VideoProgress{}).
		Where("id = ?", vp.Id).
		Updates(map[string]any{
			"watched_seconds": vp.WatchedSeconds,
			"last_position":   vp.LastPosition,
			"completed":       vp.Completed,
			"updated_at":      vp.UpdatedAt,
		})
	if res.Error != nil {
		r.logger.DebugContext(ctx, "returned", "error", res.Error)
		return res.Error
	}

	if res.RowsAffected == 0 {
		r.logger.DebugContext(ctx, "returned", "error", progress.ErrVideoProgressNotFound)
		return progress.ErrVideoProgressNotFound
	}

	return nil
}

// CountCompletedVideos counts completed entries whose video still belongs to the course.
func (r repo) CountCompletedVideos(ctx context.Context, params *progress.CountCompletedVideosParams) (int64, error) {
	r.logger.DebugContext(ctx, "called", "params", params)

	var count int64
	if err := r.conn(ctx).Model(&progress.VideoProgress{}).
		Joins("JOIN videos ON videos.id = video_progress.video_id").
		Where("video_progress.progress_id = ? AND video_progress.completed = ? AND videos.course_id = ?",
			params.ProgressId, true, params.CourseId).
		Count(&count).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return 0, err
	}

	return count, nil
}

// ListVideoProgress returns the entries of a course progress in video order.
func (r repo) ListVideoProgress(ctx context.Context, progressId string) ([]progress.VideoProgress, error) {
	r.logger.DebugContext(ctx, "called", "progress_id", progressId)

	var list []progress.VideoProgress
	if err := r.conn(ctx).
		Joins("JOIN videos ON videos.id = video_progress.video_id").
		Where("video_progress.progress_id = ?", progressId).
		Order("videos.position ASC, video_progress.video_id ASC").
		Find(&list).Error; err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return list, nil
}
