package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/nazeru/agrimarket-go/pkg/contracts"
	"github.com/nazeru/agrimarket-go/pkg/outbox"
	"github.com/nazeru/agrimarket-go/pkg/outbox/mocks"
)

func TestFlush_PublishesInOrderAndMarksSent(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)

	recs := []outbox.Record{{ID: 1, EventID: "e-1"}, {ID: 2, EventID: "e-2"}}
	gomock.InOrder(
		source.EXPECT().FetchPending(gomock.Any(), 10).Return(recs, nil),
		pub.EXPECT().Publish(gomock.Any(), recs[0]).Return(nil),
		source.EXPECT().MarkSent(gomock.Any(), int64(1)).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), recs[1]).Return(nil),
		source.EXPECT().MarkSent(gomock.Any(), int64(2)).Return(nil),
	)

	r := outbox.NewRelay(source, pub, zaptest.NewLogger(t), time.Second, 10)
	n, err := r.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFlush_StopsAtFirstPublishFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)

	recs := []outbox.Record{{ID: 1}, {ID: 2}}
	source.EXPECT().FetchPending(gomock.Any(), 100).Return(recs, nil)
	pub.EXPECT().Publish(gomock.Any(), recs[0]).Return(errors.New("broker down"))

	r := outbox.NewRelay(source, pub, zaptest.NewLogger(t), time.Second, 0)
	n, err := r.Flush(context.Background())
	assert.EqualError(t, err, "broker down")
	assert.Zero(t, n)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	source := mocks.NewMockSource(ctrl)
	pub := mocks.NewMockPublisher(ctrl)
	source.EXPECT().FetchPending(gomock.Any(), gomock.Any()).Return(nil, nil).MinTimes(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- outbox.NewRelay(source, pub, zaptest.NewLogger(t), 5*time.Millisecond, 10).Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestFromEvent_KeysByOrder(t *testing.T) {
	evt := contracts.NewEvent(contracts.EventOrderCreated, "o-1", "buyer-1", time.Now(), nil)
	rec, err := outbox.FromEvent("agrimarket.orders", evt)
	require.NoError(t, err)

	assert.Equal(t, "o-1", rec.Key)
	assert.Equal(t, evt.EventID, rec.EventID)
	assert.Equal(t, "agrimarket.orders", rec.Topic)
	assert.Contains(t, string(rec.Payload), `"type":"order.created"`)
}
