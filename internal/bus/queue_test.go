package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/internal/model"
	"aggregator/pkg/exception"
)

func snapshot(venue model.Venue, id uint64) model.Snapshot {
	return model.Snapshot{Venue: venue, UpdateID: id}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	p := q.NewProducer()
	ctx := context.Background()

	for i := range uint64(3) {
		require.NoError(t, p.Publish(ctx, snapshot("binance", i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := range uint64(3) {
		s, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, s.UpdateID)
	}
}

func TestQueueBackpressure(t *testing.T) {
	q := NewQueue(1)
	p := q.NewProducer()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, snapshot("binance", 1)))

	published := make(chan error, 1)
	go func() {
		published <- p.Publish(ctx, snapshot("binance", 2))
	}()

	select {
	case <-published:
		t.Fatal("publish on a full queue must block")
	case <-time.After(50 * time.Millisecond):
	}

	s, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.UpdateID)

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock")
	}
}

func TestQueueReceiverGoneUnblocksProducer(t *testing.T) {
	q := NewQueue(1)
	p := q.NewProducer()
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, snapshot("bitstamp", 1)))

	published := make(chan error, 1)
	go func() {
		published <- p.Publish(ctx, snapshot("bitstamp", 2))
	}()

	q.CloseReceiver()
	select {
	case err := <-published:
		require.ErrorIs(t, err, exception.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("publish did not observe the receiver going away")
	}

	require.ErrorIs(t, p.Publish(ctx, snapshot("bitstamp", 3)), exception.ErrQueueClosed)
}

func TestQueueClosesWhenAllProducersGone(t *testing.T) {
	q := NewQueue(4)
	a := q.NewProducer()
	b := q.NewProducer()
	ctx := context.Background()

	require.NoError(t, a.Publish(ctx, snapshot("binance", 1)))
	a.Close()
	a.Close()
	require.ErrorIs(t, a.Publish(ctx, snapshot("binance", 2)), exception.ErrQueueClosed)

	require.NoError(t, b.Publish(ctx, snapshot("bitstamp", 1)))
	b.Close()

	for range 2 {
		_, err := q.Receive(ctx)
		require.NoError(t, err)
	}
	_, err := q.Receive(ctx)
	require.ErrorIs(t, err, exception.ErrQueueClosed)

	late := q.NewProducer()
	require.ErrorIs(t, late.Publish(ctx, snapshot("binance", 9)), exception.ErrQueueClosed)
}

func TestQueueContextCancel(t *testing.T) {
	q := NewQueue(1)
	p := q.NewProducer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, p.Publish(context.Background(), snapshot("binance", 1)))
	require.ErrorIs(t, p.Publish(ctx, snapshot("binance", 2)), context.Canceled)
}
