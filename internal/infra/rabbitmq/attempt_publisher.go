package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"timed-quiz-service/internal/domain"
)

// publisher is the subset of *amqp.Channel the publisher uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AttemptPublisher sends every submitted attempt as a JSON message to a durable queue.
type AttemptPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pub     publisher
	queue   string
	now     func() time.Time

	mu sync.Mutex
}

// Dial connects to the broker and declares the queue.
func Dial(url, queue string) (*AttemptPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	p := newAttemptPublisher(channel, queue)
	p.conn = conn
	p.channel = channel
	return p, nil
}

func newAttemptPublisher(pub publisher, queue string) *AttemptPublisher {
	return &AttemptPublisher{pub: pub, queue: queue, now: time.Now}
}

// RecordAttempt implements app.AttemptRecorder.
func (p *AttemptPublisher) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.pub.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s-%d", attempt.SessionID, attempt.Number),
			Type:         "quiz.attempt.submitted",
			Body:         body,
			Timestamp:    p.now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish attempt: %w", err)
	}
	return nil
}

func (p *AttemptPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
