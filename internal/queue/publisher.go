package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) PublishJob(ctx context.Context, msg JobMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid job message: %w", err)
	}
	return p.publish(ctx, JobRoutingKey(msg.Status), msg.JobID, msg.JobID, msg)
}

func (p *RabbitMQPublisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outcome message: %w", err)
	}
	return p.publish(ctx, OutcomeRoutingKey(msg.Result), msg.MessageID(), msg.JobID, msg)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey, messageID, jobID string, msg any) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     messageID,
		CorrelationId: jobID,
		Type:          routingKey,
		Body:          payload,
	}

	if err := ch.PublishWithContext(ctx, EventsExchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
