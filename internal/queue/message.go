package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/nikverify/internal/domain"
)

// JobMessage is the broker payload announcing a finished batch job.
type JobMessage struct {
	JobID          string           `json:"jobId"`
	Status         domain.JobStatus `json:"status"`
	Total          int              `json:"total"`
	Processed      int              `json:"processed"`
	SuccessCount   int              `json:"successCount"`
	FailureCount   int              `json:"failureCount"`
	SuccessLimit   int              `json:"successLimit"`
	FailureMessage string           `json:"failureMessage,omitempty"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
}

func (m JobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !m.Status.IsTerminal() {
		return fmt.Errorf("job status %q is not terminal", m.Status)
	}
	return nil
}

// OutcomeMessage is the broker payload for one verified identifier.
type OutcomeMessage struct {
	JobID            string        `json:"jobId"`
	Position         int           `json:"position"`
	Identifier       string        `json:"identifier"`
	CustomerName     *string       `json:"customerName,omitempty"`
	CustomerCategory *string       `json:"customerCategory,omitempty"`
	Result           domain.Result `json:"result"`
	FailureReason    *string       `json:"failureReason,omitempty"`
	RecordedAt       time.Time     `json:"recordedAt"`
}

func (m OutcomeMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if !domain.Identifier(m.Identifier).IsValid() {
		return fmt.Errorf("invalid identifier %q", m.Identifier)
	}
	if !m.Result.IsValid() {
		return fmt.Errorf("invalid result %q", m.Result)
	}
	return nil
}

// MessageID is unique per job and position so consumers can deduplicate.
func (m OutcomeMessage) MessageID() string {
	return fmt.Sprintf("%s:%d", m.JobID, m.Position)
}

func JobMessageFromSummary(s domain.JobSummary) JobMessage {
	return JobMessage{
		JobID:          s.JobID,
		Status:         s.Status,
		Total:          s.Total,
		Processed:      s.Processed,
		SuccessCount:   s.SuccessCount,
		FailureCount:   s.FailureCount(),
		SuccessLimit:   s.SuccessLimit,
		FailureMessage: s.FailureMessage,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
	}
}

func OutcomeMessagesFromSummary(s domain.JobSummary) []OutcomeMessage {
	messages := make([]OutcomeMessage, 0, len(s.Records))
	for i, r := range s.Records {
		var reason *string
		if r.FailureReason != nil {
			v := r.FailureReason.String()
			reason = &v
		}
		messages = append(messages, OutcomeMessage{
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
	return messages
}
