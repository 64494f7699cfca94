package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the processing state of a batch job.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusStarting, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the job will not change anymore.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// Credentials authenticate against the merchant portal.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	return nil
}

// NormalizeSuccessLimit applies the default limit: every identifier.
func NormalizeSuccessLimit(limit int, total int) int {
	if limit <= 0 {
		return total
	}
	return limit
}

// BatchJob tracks one submitted batch. Report bytes live in the artifact
// store under the job ID; the job only remembers whether they exist.
type BatchJob struct {
	ID                    string
	Identifiers           []Identifier
	SuccessLimit          int
	Status                JobStatus
	ProcessedCount        int
	SuccessCount          int
	CurrentIdentifier     Identifier
	Records               []OutcomeRecord
	FailureMessage        string
	StartedAt             time.Time
	EstimatedCompletionAt time.Time
	FinishedAt            *time.Time
	ReportFilename        string
	HasReport             bool
}

func (j *BatchJob) Total() int { return len(j.Identifiers) }

// Summary snapshots the job for completion recorders.
func (j *BatchJob) Summary() JobSummary {
	records := make([]OutcomeRecord, len(j.Records))
	copy(records, j.Records)

	var finishedAt time.Time
	if j.FinishedAt != nil {
		finishedAt = *j.FinishedAt
	}

	return JobSummary{
		JobID:          j.ID,
		Status:         j.Status,
		Total:          j.Total(),
		Processed:      j.ProcessedCount,
		SuccessCount:   j.SuccessCount,
		SuccessLimit:   j.SuccessLimit,
		FailureMessage: j.FailureMessage,
		ReportFilename: j.ReportFilename,
		StartedAt:      j.StartedAt,
		FinishedAt:     finishedAt,
		Records:        records,
	}
}

// JobSummary is the immutable view of a finished job.
type JobSummary struct {
	JobID          string
	Status         JobStatus
	Total          int
	Processed      int
	SuccessCount   int
	SuccessLimit   int
	FailureMessage string
	ReportFilename string
	StartedAt      time.Time
	FinishedAt     time.Time
	Records        []OutcomeRecord
}

func (s JobSummary) FailureCount() int {
	failed := 0
	for _, r := range s.Records {
		if !r.IsSuccess() {
			failed++
		}
	}
	return failed
}
