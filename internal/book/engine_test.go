package book

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/internal/broadcast"
	"aggregator/internal/bus"
	"aggregator/internal/model"
	"aggregator/internal/shutdown"
	"aggregator/pkg/exception"
)

type engineFixture struct {
	queue    *bus.Queue
	producer *bus.Producer
	hub      *broadcast.Hub
	coord    *shutdown.Coordinator
	done     chan error
}

func startEngine(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		queue: bus.NewQueue(4),
		hub:   broadcast.NewHub(16),
		coord: shutdown.New(),
		done:  make(chan error, 1),
	}
	f.producer = f.queue.NewProducer()
	engine := NewEngine(NewBook(2), f.queue, f.hub, nil)
	handle := f.coord.Subscribe()
	go func() {
		f.done <- engine.Run(handle)
	}()
	return f
}

func (f *engineFixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.done:
		return err
	case <-time.After(time.Second):
		t.Fatal("engine did not exit")
		return nil
	}
}

func TestEnginePublishesSummaries(t *testing.T) {
	f := startEngine(t)
	sub := f.hub.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, f.producer.Publish(ctx, model.Snapshot{
		Venue: "binance",
		Bids:  quotes("binance", [2]float64{100, 1}),
		Asks:  quotes("binance", [2]float64{101, 1}),
	}))
	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Spread)

	require.NoError(t, f.producer.Publish(ctx, model.Snapshot{
		Venue: "bitstamp",
		Bids:  quotes("bitstamp", [2]float64{100.5, 1}),
	}))
	got, err = sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Spread)
	assert.Equal(t, "bitstamp", got.Bids[0].Exchange)

	f.coord.Shutdown()
	require.NoError(t, f.wait(t))
}

func TestEngineStopsOnShutdown(t *testing.T) {
	f := startEngine(t)
	sub := f.hub.Subscribe()
	defer sub.Close()

	f.coord.Shutdown()
	require.NoError(t, f.wait(t))

	_, err := sub.Recv(context.Background())
	require.ErrorIs(t, err, exception.ErrHubClosed)

	err = f.producer.Publish(context.Background(), model.Snapshot{Venue: "binance"})
	require.ErrorIs(t, err, exception.ErrQueueClosed)
}

func TestEngineStopsWhenProducersGone(t *testing.T) {
	f := startEngine(t)
	f.producer.Close()

	require.NoError(t, f.wait(t))
	assert.False(t, f.coord.Signalled())
	f.coord.Shutdown()
}

func TestEngineStopsWhenPublishFails(t *testing.T) {
	f := startEngine(t)
	f.hub.Close()

	require.NoError(t, f.producer.Publish(context.Background(), model.Snapshot{Venue: "binance"}))
	require.ErrorIs(t, f.wait(t), exception.ErrHubClosed)
	f.coord.Shutdown()
}
