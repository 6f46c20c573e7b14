package progress

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coursecast/server/internal/domain"
	"github.com/coursecast/server/internal/repository/progress"
	"github.com/coursecast/server/internal/repository/progress/gormrepo"
	"github.com/coursecast/server/internal/repository/progress/gormrepo/gormrepotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*service, *gorm.DB) {
	t.Helper()

	db := gormrepotest.Open(t)
	repo := gormrepo.NewRepo(db, slog.Default())

	return NewService(repo, nil, slog.Default()), db
}

func ptr[T any](v T) *T {
	return &v
}

func TestWatchedSecondsMonotonic(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 2, 100, "student-1")

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 50, TotalDuration: 100})
	require.NoError(t, err)
	assert.Equal(t, 50.0, resp.VideoProgress.WatchedSeconds)

	resp, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 30, TotalDuration: 100})
	require.NoError(t, err)
	assert.Equal(t, 50.0, resp.VideoProgress.WatchedSeconds, "watched seconds never decrease")
	assert.Equal(t, 30.0, resp.VideoProgress.LastPosition, "position follows the latest report")
	assert.False(t, resp.VideoProgress.Completed)
}

func TestCompletionThreshold(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		watched   float64
		duration  float64
		explicit  *bool
		completed bool
	}{
		{name: "below threshold", watched: 89, duration: 100, completed: false},
		{name: "at threshold", watched: 90, duration: 100, completed: true},
		{name: "zero duration", watched: 500, duration: 0, completed: false},
		{name: "explicit", watched: 1, duration: 100, explicit: ptr(true), completed: true},
		{name: "explicit false", watched: 95, duration: 100, explicit: ptr(false), completed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, db := newTestService(t)
			// stored duration 0 so the zero-duration case has nothing to fall back to
			f := gormrepotest.Seed(t, db, "tutor-1", 1, 0, "student-1")

			resp, err := s.RecordProgress(ctx, &RecordProgressParams{
				UserId:         "student-1",
				VideoId:        f.Videos[0].Id,
				CourseId:       f.Course.Id,
				WatchedSeconds: tt.watched,
				TotalDuration:  tt.duration,
				IsCompleted:    tt.explicit,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.completed, resp.VideoProgress.Completed)
		})
	}
}

func TestCompletionSticky(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 1, 100, "student-1")

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 10, IsCompleted: ptr(true), TotalDuration: 100})
	require.NoError(t, err)
	require.True(t, resp.VideoProgress.Completed)

	resp, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 5, IsCompleted: ptr(false), TotalDuration: 100})
	require.NoError(t, err)
	assert.True(t, resp.VideoProgress.Completed, "completion is never revoked")
	assert.Equal(t, 100.0, resp.CourseProgress.Progress)
}

func TestStoredDurationFallback(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 1, 200, "student-1")

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, WatchedSeconds: 180})
	require.NoError(t, err)
	assert.True(t, resp.VideoProgress.Completed)
}

func TestCoursePercentage(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 4, 100, "student-1")

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 100, TotalDuration: 100})
	require.NoError(t, err)
	assert.Equal(t, 25.0, resp.CourseProgress.Progress)
	assert.NotEmpty(t, resp.CourseProgress.Id)

	resp, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[1].Id, CourseId: f.Course.Id, WatchedSeconds: 10, TotalDuration: 100})
	require.NoError(t, err)
	assert.Equal(t, 25.0, resp.CourseProgress.Progress)

	got, err := s.GetCourseProgress(ctx, "student-1", f.Course.Id)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.CourseProgress.Progress)
	assert.Len(t, got.VideoProgress, 2)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, percentage(0, 0))
	assert.Equal(t, 0.0, percentage(3, 0))
	assert.Equal(t, 25.0, percentage(1, 4))
	assert.Equal(t, 100.0, percentage(5, 4))
	assert.InDelta(t, 33.333, percentage(1, 3), 0.001)
}

func TestRemovedVideoNotCounted(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 2, 100, "student-1")

	_, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 100, TotalDuration: 100})
	require.NoError(t, err)

	// the video moves to another course
	other := gormrepotest.Seed(t, db, "tutor-2", 0, 0)
	require.NoError(t, db.Model(&progress.Video{}).Where("id = ?", f.Videos[0].Id).Update("course_id", other.Course.Id).Error)

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[1].Id, CourseId: f.Course.Id, WatchedSeconds: 10, TotalDuration: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.CourseProgress.Progress)
}

func TestAccess(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 1, 100, "student-1")
	other := gormrepotest.Seed(t, db, "tutor-2", 1, 100)

	_, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "stranger", VideoId: f.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 10})
	assert.ErrorIs(t, err, ErrNotEnrolled)
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "tutor-1", VideoId: f.Videos[0].Id, WatchedSeconds: 10})
	assert.NoError(t, err, "tutors may record progress on their own course")

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: "missing", CourseId: f.Course.Id, WatchedSeconds: 10})
	assert.ErrorIs(t, err, domain.ErrNotFound, "enrolled users learn the video is missing")

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "stranger", VideoId: "missing", CourseId: f.Course.Id, WatchedSeconds: 10})
	assert.ErrorIs(t, err, ErrNotEnrolled, "enrollment is checked before the video")

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: "missing", WatchedSeconds: 10})
	assert.ErrorIs(t, err, ErrNotEnrolled, "no course to check enrollment against")

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "stranger", VideoId: f.Videos[0].Id, WatchedSeconds: 10})
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: other.Videos[0].Id, CourseId: f.Course.Id, WatchedSeconds: 10})
	assert.ErrorIs(t, err, ErrVideoNotFound, "video of another course")

	_, err = s.GetCourseProgress(ctx, "stranger", f.Course.Id)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	_, err = s.GetCourseProgress(ctx, "student-1", "missing")
	assert.ErrorIs(t, err, ErrNotEnrolled)

	empty, err := s.GetCourseProgress(ctx, "student-1", f.Course.Id)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.CourseProgress.Progress)
	assert.Empty(t, empty.VideoProgress)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	tests := []RecordProgressParams{
		{VideoId: "v1"},
		{UserId: "u1"},
		{UserId: "u1", VideoId: "v1", WatchedSeconds: -1},
		{UserId: "u1", VideoId: "v1", TotalDuration: -5},
		{UserId: "u1", VideoId: "v1", Position: ptr(-1.0)},
	}

	for _, params := range tests {
		_, err := s.RecordProgress(ctx, &params)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

type callerKey struct{}

// interleavingRepo parks the first caller right after it counted completed
// videos until another caller has written the course percentage, or until
// wait elapses. Without serialisation the parked caller then overwrites the
// newer percentage with its stale count.
type interleavingRepo struct {
	iProgressRepo
	wait time.Duration

	mu        sync.Mutex
	first     any
	otherDone chan struct{}
	once      sync.Once
}

func (r *interleavingRepo) CountCompletedVideos(ctx context.Context, params *progress.CountCompletedVideosParams) (int64, error) {
	n, err := r.iProgressRepo.CountCompletedVideos(ctx, params)

	r.mu.Lock()
	isFirst := r.first == nil
	if isFirst {
		r.first = ctx.Value(callerKey{})
	}
	r.mu.Unlock()

	if isFirst {
		select {
		case <-r.otherDone:
		case <-time.After(r.wait):
		}
	}

	return n, err
}

func (r *interleavingRepo) UpdateCourseProgress(ctx context.Context, params *progress.UpdateCourseProgressParams) error {
	err := r.iProgressRepo.UpdateCourseProgress(ctx, params)

	r.mu.Lock()
	other := r.first != nil && r.first != ctx.Value(callerKey{})
	r.mu.Unlock()

	if other {
		r.once.Do(func() { close(r.otherDone) })
	}

	return err
}

func TestConcurrentUpdates(t *testing.T) {
	db := gormrepotest.Open(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 2, 100, "student-1")

	repo := &interleavingRepo{
		iProgressRepo: gormrepo.NewRepo(db, slog.Default()),
		wait:          200 * time.Millisecond,
		otherDone:     make(chan struct{}),
	}
	s := NewService(repo, nil, slog.Default())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, v := range f.Videos {
		wg.Add(1)
		go func(videoId string) {
			defer wg.Done()
			ctx := context.WithValue(context.Background(), callerKey{}, videoId)
			_, err := s.RecordProgress(ctx, &RecordProgressParams{
				UserId:         "student-1",
				VideoId:        videoId,
				CourseId:       f.Course.Id,
				WatchedSeconds: 95,
				TotalDuration:  100,
			})
			errs <- err
		}(v.Id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetCourseProgress(context.Background(), "student-1", f.Course.Id)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.CourseProgress.Progress, "both completions are counted")
	assert.Len(t, got.VideoProgress, 2)
}

func TestLastAccessedUpdated(t *testing.T) {
	ctx := context.Background()
	db := gormrepotest.Open(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewService(gormrepo.NewRepo(db, slog.Default()), &Config{Now: func() time.Time { return now }}, slog.Default())
	f := gormrepotest.Seed(t, db, "tutor-1", 1, 100, "student-1")

	_, err := s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, WatchedSeconds: 10})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = s.RecordProgress(ctx, &RecordProgressParams{UserId: "student-1", VideoId: f.Videos[0].Id, WatchedSeconds: 20})
	require.NoError(t, err)

	got, err := s.GetCourseProgress(ctx, "student-1", f.Course.Id)
	require.NoError(t, err)
	assert.True(t, got.CourseProgress.LastAccessed.Equal(now))
}

func TestCourseDerivedFromVideo(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)
	f := gormrepotest.Seed(t, db, "tutor-1", 2, 100, "student-1")

	resp, err := s.RecordProgress(ctx, &RecordProgressParams{
		UserId:         "tutor-1",
		VideoId:        f.Videos[1].Id,
		WatchedSeconds: 95,
		Position:       ptr(12.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, resp.VideoProgress.LastPosition)
	assert.True(t, resp.VideoProgress.Completed, "stored duration applies")
	assert.Equal(t, 50.0, resp.CourseProgress.Progress)

	got, err := s.GetCourseProgress(ctx, "tutor-1", f.Course.Id)
	require.NoError(t, err)
	assert.Equal(t, resp.CourseProgress.Id, got.CourseProgress.Id)
	require.Len(t, got.VideoProgress, 1)
	assert.Equal(t, f.Videos[1].Id, got.VideoProgress[0].VideoId)
}
