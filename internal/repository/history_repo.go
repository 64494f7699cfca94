package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/nikverify/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const outcomeInsertBatchSize = 100

type JobHistoryRepository interface {
	RecordJob(ctx context.Context, summary domain.JobSummary) error
}

var _ JobHistoryRepository = (*GormJobHistoryRepo)(nil)

type GormJobHistoryRepo struct {
	db    *gorm.DB
	newID func() string
}

func NewGormJobHistoryRepo(db *gorm.DB) *GormJobHistoryRepo {
	return &GormJobHistoryRepo{db: db, newID: uuid.NewString}
}

// RecordJob stores the job row and its outcomes in one transaction. A job
// that was already recorded is left untouched.
func (r *GormJobHistoryRepo) RecordJob(ctx context.Context, summary domain.JobSummary) error {
	if summary.JobID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}

	job := batchJobModelFromSummary(summary)
	outcomes := outcomeModelsFromSummary(summary, r.newID)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(job)
		if result.Error != nil {
			return fmt.Errorf("failed to insert batch job: %w", result.Error)
		}
		if result.RowsAffected == 0 || len(outcomes) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&outcomes, outcomeInsertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert outcomes: %w", err)
		}
		return nil
	})
}
