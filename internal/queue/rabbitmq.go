package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "nikverify.dlx"
	deadLetterQueue  = "nikverify.dead"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// RabbitMQ manages RabbitMQ connectivity and the event topology.
type RabbitMQ struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQ(ctx context.Context, url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

// channel opens a fresh channel with the topology declared, redialing once
// when the current connection turns out to be dead.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	var (
		ch  *amqp.Channel
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		if err = r.ensureConnected(ctx); err != nil {
			return nil, err
		}

		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			err = fmt.Errorf("rabbitmq connection closed")
			continue
		}

		ch, err = conn.Channel()
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create rabbitmq channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return r.reconnectWithBackoff(ctx)
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			oldConn := r.conn
			r.conn = newConn
			r.mu.Unlock()

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		dlxExchangeName,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		deadLetterQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}

	if err := ch.QueueBind(deadLetterQueue, "", dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": dlxExchangeName,
	}

	for queueName, bindingKey := range QueueBindings() {
		if _, err := ch.QueueDeclare(
			queueName,
			true,
			false,
			false,
			false,
			args,
		); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
		}

		if err := ch.QueueBind(queueName, bindingKey, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", queueName, err)
		}
	}

	return nil
}
