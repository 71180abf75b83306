package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig describes where messages are published.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes each message as a persistent plain-text delivery on a
// durable direct exchange.
type RabbitMQ struct {
	cfg     RabbitMQConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	pub     publisher
}

// NewRabbitMQ dials the broker and declares the exchange.
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq: exchange name is required")
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "house-finder.results"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to declare exchange '%s': %w", cfg.Exchange, err)
	}

	return &RabbitMQ{cfg: cfg, conn: conn, channel: ch, pub: ch}, nil
}

func (r *RabbitMQ) Notify(ctx context.Context, message string) error {
	if r.conn != nil && r.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: connection is closed")
	}
	err := r.pub.PublishWithContext(ctx, r.cfg.Exchange, r.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "text/plain; charset=utf-8",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         []byte(message),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: failed to publish message: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	var firstErr error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
