package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/nikverify/internal/domain"
)

const (
	// EventsExchange is the topic exchange every batch event is published to.
	EventsExchange = "nikverify.events"

	JobsQueue     = "nikverify.jobs"
	OutcomesQueue = "nikverify.outcomes"

	jobBindingKey     = "job.*"
	outcomeBindingKey = "outcome.*"
)

// Publisher publishes batch events to the events exchange.
type Publisher interface {
	PublishJob(ctx context.Context, msg JobMessage) error
	PublishOutcome(ctx context.Context, msg OutcomeMessage) error
	Close() error
}

// JobRoutingKey returns the routing key for a finished job, e.g. job.completed.
func JobRoutingKey(status domain.JobStatus) string {
	return fmt.Sprintf("job.%s", strings.ToLower(status.String()))
}

// OutcomeRoutingKey returns the routing key for one outcome, e.g. outcome.success.
func OutcomeRoutingKey(result domain.Result) string {
	return fmt.Sprintf("outcome.%s", strings.ToLower(result.String()))
}

// QueueBindings lists the durable queues and the keys they are bound with.
func QueueBindings() map[string]string {
	return map[string]string{
		JobsQueue:     jobBindingKey,
		OutcomesQueue: outcomeBindingKey,
	}
}
