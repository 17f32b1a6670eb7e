package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/yanun0323/logs"

	"aggregator/internal/bus"
	"aggregator/internal/model"
	"aggregator/internal/obs"
	"aggregator/internal/shutdown"
	"aggregator/pkg/exception"
	"aggregator/pkg/websocket"
)

const teardownTimeout = 3 * time.Second

// Connector runs one venue session and feeds its snapshots into the queue.
type Connector struct {
	venue    Venue
	producer *bus.Producer
	metrics  *obs.Metrics
}

func NewConnector(venue Venue, producer *bus.Producer, metrics *obs.Metrics) *Connector {
	return &Connector{
		venue:    venue,
		producer: producer,
		metrics:  metrics,
	}
}

type parseResult struct {
	snapshot model.Snapshot
	err      error
}

// Run connects, subscribes and streams snapshots until the connection fails or
// the shutdown signal fires. Connection and subscription failures are returned.
//
// Run owns the handle and the producer and releases both before returning.
// A snapshot the queue refuses is logged and dropped; the session keeps going
// until the venue closes it or shutdown is signalled.
func (c *Connector) Run(handle *shutdown.Handle) error {
	defer handle.Release()
	defer c.producer.Close()

	if c.venue == nil {
		return exception.ErrNilVenue
	}
	name := c.venue.Name()
	ctx := handle.Context()

	conn, err := c.venue.Connect(ctx)
	if err != nil {
		return errors.Join(exception.ErrDialFailed, err)
	}
	if err := c.venue.Subscribe(ctx, conn); err != nil {
		_ = conn.Close(websocket.CloseNormal, "")
		return err
	}
	logs.Infof("subscribed to %s", name)

	results := make(chan parseResult)
	stop := make(chan struct{})
	go c.read(conn, results, stop)

loop:
	for {
		select {
		case <-handle.Done():
			break loop
		case res := <-results:
			if res.err != nil {
				if errors.Is(res.err, exception.ErrMalformedFrame) {
					logs.Errorf("%s: error parsing message, err: %+v", name, res.err)
					c.metrics.IncMalformedFrame(name)
					continue
				}
				logs.Errorf("%s: server went away, err: %+v", name, res.err)
				break loop
			}

			if err := c.producer.Publish(ctx, res.snapshot); err != nil {
				logs.Warnf("%s: error sending snapshot, err: %+v", name, err)
				c.metrics.IncEnqueueFailure(name)
				continue
			}
			c.metrics.IncSnapshot(name)
		}
	}
	close(stop)

	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := c.venue.Unsubscribe(teardownCtx, conn); err != nil {
		logs.Warnf("%s: could not unsubscribe, err: %+v", name, err)
	}
	_ = conn.Close(websocket.CloseNormal, "")

	logs.Infof("exiting %s...", name)
	return nil
}

// read is the only reader of conn. It stops after a fatal error or once stop
// is closed; closing conn unblocks a pending read.
func (c *Connector) read(conn websocket.Conn, results chan<- parseResult, stop <-chan struct{}) {
	ctx := context.Background()
	for {
		snap, err := c.venue.ParseNext(ctx, conn)
		select {
		case results <- parseResult{snapshot: snap, err: err}:
		case <-stop:
			return
		}
		if err != nil && !errors.Is(err, exception.ErrMalformedFrame) {
			return
		}
	}
}
