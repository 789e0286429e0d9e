package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_outbox.go -package=mocks github.com/nazeru/agrimarket-go/pkg/outbox Source,Publisher

// Source is the store side of the outbox.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// Publisher delivers a record to a broker. Delivery is at-least-once; consumers
// dedupe on EventID.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type Relay struct {
	source   Source
	pub      Publisher
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewRelay(source Source, pub Publisher, log *zap.Logger, interval time.Duration, batch int) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{source: source, pub: pub, log: log, interval: interval, batch: batch}
}

// Run drains the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("outbox flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch in id order and stops at the first failure so the
// remaining records keep their order for the next attempt.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.source.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range recs {
		if err := r.pub.Publish(ctx, rec); err != nil {
			return sent, err
		}
		if err := r.source.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
		r.log.Debug("outbox record published", zap.Int64("id", rec.ID), zap.String("event_id", rec.EventID), zap.String("topic", rec.Topic))
	}
	return sent, nil
}
