package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/timmy/textfleet/internal/domain"
)

// ErrNotFound is returned when no history row exists for a job id.
var ErrNotFound = errors.New("job history not found")

// JobHistoryRepository persists finished jobs.
type JobHistoryRepository struct {
	db *gorm.DB
}

// NewJobHistoryRepository creates a new JobHistoryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobHistoryRepository: repository instance bound to db.
func NewJobHistoryRepository(db *gorm.DB) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Record inserts a finished job, replacing an earlier row with the same id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: job history row.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *JobHistoryRepository) Record(ctx context.Context, rec *domain.JobRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// Exists reports whether a job id has already finished.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
// Returns:
//   - bool: true if a history row exists.
//   - error: non-nil if the query fails.
func (r *JobHistoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.JobRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID retrieves one finished job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job id.
// Returns:
//   - *domain.JobRecord: history row if found.
//   - error: ErrNotFound if missing, non-nil if the query fails.
func (r *JobHistoryRepository) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List returns finished jobs, most recent first, with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows.
//   - offset: number of rows to skip.
// Returns:
//   - []domain.JobRecord: history page.
//   - error: non-nil if the query fails.
func (r *JobHistoryRepository) List(ctx context.Context, limit, offset int) ([]domain.JobRecord, error) {
	var recs []domain.JobRecord
	err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, err
}

// Count returns the total number of finished jobs.
func (r *JobHistoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.JobRecord{}).Count(&count).Error
	return count, err
}
