package ingest

import (
	"context"

	"aggregator/internal/model"
	"aggregator/pkg/websocket"
)

// Venue is the protocol capability set of one exchange.
//
// ParseNext returns an error wrapping exception.ErrMalformedFrame for a frame
// that should be skipped; any other error ends the session.
type Venue interface {
	Name() model.Venue
	Connect(ctx context.Context) (websocket.Conn, error)
	Subscribe(ctx context.Context, conn websocket.Conn) error
	ParseNext(ctx context.Context, conn websocket.Conn) (model.Snapshot, error)
	Unsubscribe(ctx context.Context, conn websocket.Conn) error
}
