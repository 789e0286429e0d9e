package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/nazeru/agrimarket-go/pkg/contracts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func event(typ string, payload map[string]any) contracts.Event {
	return contracts.NewEvent(typ, "o-1", "seller-S", time.Now(), payload)
}

func TestBuild(t *testing.T) {
	parties := map[string]any{
		"order_number":          "ORD-1",
		RecipientBuyer + "_id":  "buyer-B",
		RecipientSeller + "_id": "seller-S",
		"total":                 "12.00",
	}

	created := Build(event(contracts.EventOrderCreated, parties))
	require.Len(t, created, 2)
	assert.Equal(t, "seller-S", created[0].Recipient)
	assert.Equal(t, "New order ORD-1 for 12.00", created[0].Message)
	assert.Equal(t, "buyer-B", created[1].Recipient)

	cancelled := Build(event(contracts.EventOrderCancelled, map[string]any{"order_number": "ORD-1", "buyer_id": "buyer-B", "reason": "hail"}))
	require.Len(t, cancelled, 1)
	assert.Equal(t, "Order ORD-1 was cancelled: hail", cancelled[0].Message)
	assert.Equal(t, contracts.EventOrderCancelled, cancelled[0].Kind)

	paid := Build(event(contracts.EventOrderPaymentUpdated, map[string]any{"buyer_id": "buyer-B", "to_payment": "Paid"}))
	require.Len(t, paid, 1)
	assert.Equal(t, "Payment for order o-1 is now Paid", paid[0].Message)

	noSeller := Build(event(contracts.EventOrderCreated, map[string]any{"order_number": "ORD-2", "buyer_id": "buyer-B"}))
	require.Len(t, noSeller, 1)
	assert.Equal(t, "buyer-B", noSeller[0].Recipient)

	assert.Empty(t, Build(event(contracts.EventInventoryReserved, map[string]any{"product_id": "P"})))
	assert.Empty(t, Build(contracts.Event{Type: contracts.EventOrderCreated, Payload: parties}))
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeSaver struct {
	mu       sync.Mutex
	failures int
	seen     map[string]bool
	rows     int
}

func (s *fakeSaver) Save(_ context.Context, eventID string, ns []Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return false, errors.New("db down")
	}
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	s.rows += len(ns)
	return true, nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func message(t *testing.T, offset int64, evt contracts.Event) kafka.Message {
	t.Helper()
	b, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestConsumer_DedupesRetriesAndCommits(t *testing.T) {
	evt := event(contracts.EventOrderConfirmed, map[string]any{"buyer_id": "buyer-B"})
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, 1, evt),
		{Offset: 2, Value: []byte("not json")},
		message(t, 3, evt),
	}}
	saver := &fakeSaver{failures: 1, seen: map[string]bool{}}

	c := NewConsumer(reader, saver, zaptest.NewLogger(t))
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	assert.Equal(t, 1, saver.count())
}
