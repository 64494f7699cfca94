package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/nikverify/internal/domain"
)

// EventRecorder publishes one event per outcome followed by the job event.
type EventRecorder struct {
	publisher Publisher
}

func NewEventRecorder(publisher Publisher) (*EventRecorder, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &EventRecorder{publisher: publisher}, nil
}

func (r *EventRecorder) RecordJob(ctx context.Context, summary domain.JobSummary) error {
	var errs []error
	for _, msg := range OutcomeMessagesFromSummary(summary) {
		if err := r.publisher.PublishOutcome(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}

	if err := r.publisher.PublishJob(ctx, JobMessageFromSummary(summary)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
