package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/nikverify/internal/domain"
)

// BatchJobModel is the persistence model for the batch_jobs history table.
type BatchJobModel struct {
	ID             string           `gorm:"type:uuid;primaryKey"`
	Status         domain.JobStatus `gorm:"type:varchar(20);not null"`
	TotalCount     int              `gorm:"not null"`
	ProcessedCount int              `gorm:"not null"`
	SuccessCount   int              `gorm:"not null"`
	SuccessLimit   int              `gorm:"not null"`
	FailureMessage *string          `gorm:"type:text"`
	ReportFilename *string          `gorm:"type:varchar(255)"`
	StartedAt      time.Time        `gorm:"type:timestamptz;not null"`
	FinishedAt     time.Time        `gorm:"type:timestamptz;not null"`
	CreatedAt      time.Time
}

func (BatchJobModel) TableName() string {
	return "batch_jobs"
}

// OutcomeModel is one verified identifier of a batch job.
type OutcomeModel struct {
	ID               string        `gorm:"type:uuid;primaryKey"`
	JobID            string        `gorm:"type:uuid;not null"`
	Position         int           `gorm:"not null"`
	Identifier       string        `gorm:"type:char(16);not null"`
	CustomerName     *string       `gorm:"type:varchar(255)"`
	CustomerCategory *string       `gorm:"type:varchar(100)"`
	Result           domain.Result `gorm:"type:varchar(10);not null"`
	FailureReason    *string       `gorm:"type:varchar(100)"`
	RecordedAt       time.Time     `gorm:"type:timestamptz;not null"`
}

func (OutcomeModel) TableName() string {
	return "job_outcomes"
}

func batchJobModelFromSummary(s domain.JobSummary) *BatchJobModel {
	return &BatchJobModel{
		ID:             s.JobID,
		Status:         s.Status,
		TotalCount:     s.Total,
		ProcessedCount: s.Processed,
		SuccessCount:   s.SuccessCount,
		SuccessLimit:   s.SuccessLimit,
		FailureMessage: optional(s.FailureMessage),
		ReportFilename: optional(s.ReportFilename),
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
	}
}

func outcomeModelsFromSummary(s domain.JobSummary, newID func() string) []OutcomeModel {
	if newID == nil {
		newID = uuid.NewString
	}

	models := make([]OutcomeModel, 0, len(s.Records))
	for i, r := range s.Records {
		var reason *string
		if r.FailureReason != nil {
			v := r.FailureReason.String()
			reason = &v
		}
		models = append(models, OutcomeModel{
			ID:               newID(),
			JobID:            s.JobID,
			Position:         i + 1,
			Identifier:       r.Identifier.String(),
			CustomerName:     r.CustomerName,
			CustomerCategory: r.CustomerCategory,
			Result:           r.Result,
			FailureReason:    reason,
			RecordedAt:       r.Timestamp,
		})
	}
	return models
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
