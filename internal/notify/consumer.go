package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/logging"
)

// Saver persists the notifications of one event exactly once.
type Saver interface {
	Save(ctx context.Context, eventID string, ns []Notification) (bool, error)
}

// PGSaver dedupes on the inbox table and writes notifications in the same tx.
type PGSaver struct {
	pool *pgxpool.Pool
}

func NewPGSaver(pool *pgxpool.Pool) *PGSaver {
	return &PGSaver{pool: pool}
}

// Save reports false when the event was already processed.
func (s *PGSaver) Save(ctx context.Context, eventID string, ns []Notification) (bool, error) {
	saved := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO inbox(event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, eventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		for _, n := range ns {
			if _, err := tx.Exec(ctx, `INSERT INTO notifications(event_id, order_id, recipient, kind, message)
				VALUES ($1, $2, $3, $4, $5) ON CONFLICT (event_id, recipient) DO NOTHING`,
				n.EventID, n.OrderID, n.Recipient, n.Kind, n.Message); err != nil {
				return err
			}
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("save notifications for %s: %w", eventID, err)
	}
	return saved, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	reader  messageReader
	saver   Saver
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(reader messageReader, saver Saver, log *zap.Logger) *Consumer {
	return &Consumer{reader: reader, saver: saver, log: log, backoff: 2 * time.Second}
}

// Run commits an offset only after its event is stored, so a crash replays
// the event and the inbox drops the duplicate.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("kafka fetch failed", zap.Error(err))
			if !c.wait(ctx) {
				return nil
			}
			continue
		}
		// the same message is retried until it is stored
		for err := c.handle(ctx, msg); err != nil; err = c.handle(ctx, msg) {
			c.log.Error("notification failed", zap.Error(err))
			if !c.wait(ctx) {
				return nil
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return true
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var evt contracts.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		// poison messages are skipped and committed
		c.log.Warn("dropping undecodable message", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}
	if evt.EventID == "" {
		c.log.Warn("dropping event without id", zap.Int64("offset", msg.Offset))
		return nil
	}
	saved, err := c.saver.Save(ctx, evt.EventID, Build(evt))
	if err != nil {
		return err
	}
	status := "stored"
	if !saved {
		status = "duplicate"
	}
	logging.Log(c.log, logging.Fields{
		OrderID: evt.OrderID,
		ActorID: evt.ActorID,
		EventID: evt.EventID,
		Step:    evt.Type,
		Status:  status,
		Message: "event consumed",
	})
	return nil
}
