package book

import (
	"context"
	"errors"

	"github.com/yanun0323/logs"

	"aggregator/internal/broadcast"
	"aggregator/internal/bus"
	"aggregator/internal/obs"
	"aggregator/internal/shutdown"
	"aggregator/pkg/exception"
)

// Engine drains the ingestion queue into the book and publishes every summary.
type Engine struct {
	book    *Book
	queue   *bus.Queue
	hub     *broadcast.Hub
	metrics *obs.Metrics
}

func NewEngine(book *Book, queue *bus.Queue, hub *broadcast.Hub, metrics *obs.Metrics) *Engine {
	return &Engine{
		book:    book,
		queue:   queue,
		hub:     hub,
		metrics: metrics,
	}
}

// Run processes snapshots until the shutdown signal, until every producer is
// gone, or until publishing fails. On return the queue receiver and the hub are
// closed and the handle is released.
func (e *Engine) Run(handle *shutdown.Handle) error {
	defer handle.Release()
	defer e.hub.Close()
	defer e.queue.CloseReceiver()
	defer logs.Info("exiting orderbook...")

	ctx := handle.Context()
	for {
		snap, err := e.queue.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, exception.ErrQueueClosed):
				logs.Info("ingestion queue closed, no connectors left")
			case errors.Is(err, context.Canceled):
			default:
				logs.Errorf("receive snapshot, err: %+v", err)
			}
			return nil
		}

		summary := e.book.Ingest(snap)
		if err := e.hub.Publish(summary); err != nil {
			logs.Errorf("unable to send summary, err: %+v", err)
			return err
		}
		e.metrics.ObserveSummary(summary, snap.ReceivedAt)
	}
}
