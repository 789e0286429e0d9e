package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/pkg/outbox"
)

type Config struct {
	URL      string
	Exchange string
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher relays outbox records to a topic exchange. The routing key is the
// event type (order.created, inventory.released, ...).
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// Dial connects with a short backoff and declares a durable topic exchange.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (*Publisher, error) {
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("exchange name cannot be empty")
	}
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		wait := time.Duration(i*i)*time.Second + time.Second
		log.Warn("rabbitmq connect failed, retrying", zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, rec outbox.Record) error {
	key := RoutingKey(rec)
	err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.EventID,
		Timestamp:    rec.CreatedAt,
		Headers:      amqp.Table{"order_id": rec.Key},
		Body:         rec.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s with routing key %s: %w", p.exchange, key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey is the event type in the payload, or the record topic when the
// payload carries none.
func RoutingKey(rec outbox.Record) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Payload, &head); err == nil && head.Type != "" {
		return head.Type
	}
	return rec.Topic
}
