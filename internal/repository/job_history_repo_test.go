package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/domain"
)

func newTestRepo(t *testing.T) *JobHistoryRepository {
	t.Helper()
	db, err := InitDB(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "history", "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewJobHistoryRepository(db)
}

func TestJobHistoryRecordAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	exists, err := repo.Exists(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.GetByID(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Record(ctx, &domain.JobRecord{
		ID:           "job-1",
		State:        domain.JobStateComplete,
		Success:      false,
		TotalTasks:   3,
		FailedTasks:  1,
		ReportBucket: "b",
		ReportKey:    "jobs/job-1/summary.html",
		ErrorMessage: "Some tasks failed. See summary for details.",
		AcceptedAt:   now.Add(-time.Minute),
		FinishedAt:   now,
	}))

	exists, err = repo.Exists(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, exists)

	rec, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateComplete, rec.State)
	assert.Equal(t, 3, rec.TotalTasks)
	assert.Equal(t, 1, rec.FailedTasks)
	assert.Equal(t, "jobs/job-1/summary.html", rec.ReportKey)
}

func TestJobHistoryRecordReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, &domain.JobRecord{ID: "j", State: domain.JobStateFailed, FinishedAt: time.Now()}))
	require.NoError(t, repo.Record(ctx, &domain.JobRecord{ID: "j", State: domain.JobStateComplete, Success: true, FinishedAt: time.Now()}))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	rec, err := repo.GetByID(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateComplete, rec.State)
	assert.True(t, rec.Success)
}

func TestJobHistoryList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Record(ctx, &domain.JobRecord{
			ID:         id,
			State:      domain.JobStateComplete,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "first page", limit: 2, offset: 0, want: []string{"c", "b"}},
		{name: "second page", limit: 2, offset: 2, want: []string{"a"}},
		{name: "past the end", limit: 2, offset: 5, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.List(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	_, err := InitDB(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
