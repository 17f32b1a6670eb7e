package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"github.com/yanun0323/errors"

	"aggregator/internal/model"
	"aggregator/pkg/exception"
	"aggregator/pkg/websocket"
)

const (
	Name            model.Venue = "binance"
	DefaultEndpoint             = "wss://stream.binance.com:9443/ws"

	subscribeID   = 1
	unsubscribeID = 2
	ackTimeout    = 10 * time.Second
)

// Config selects the partial book depth stream.
type Config struct {
	Endpoint string
	Pair     string
	Depth    int
	Latency  string
}

// Binance streams the partial book depth of one pair.
type Binance struct {
	cfg    Config
	dialer websocket.Dialer
}

func New(cfg Config) *Binance {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Binance{
		cfg:    cfg,
		dialer: websocket.NewDialer(cfg.Endpoint),
	}
}

func (b *Binance) Name() model.Venue {
	return Name
}

// Stream returns the stream name, e.g. ethbtc@depth10@100ms.
func (b *Binance) Stream() string {
	return fmt.Sprintf("%s@depth%d@%s", strings.ToLower(b.cfg.Pair), b.cfg.Depth, b.cfg.Latency)
}

func (b *Binance) Connect(ctx context.Context) (websocket.Conn, error) {
	conn, err := b.dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "connect binance")
	}
	return conn, nil
}

type request struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Subscribe sends the SUBSCRIBE request and validates the single acknowledgement:
// matching id and an explicit null result.
func (b *Binance) Subscribe(ctx context.Context, conn websocket.Conn) error {
	if err := b.send(ctx, conn, "SUBSCRIBE", subscribeID); err != nil {
		return errors.Wrap(err, "subscribe binance")
	}

	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	_, payload, err := conn.Read(ackCtx)
	if err != nil {
		return errors.Wrap(err, "read binance subscribe response")
	}
	if !isAck(payload, subscribeID) {
		return errors.Wrapf(exception.ErrSubscriptionRejected, "binance: %s", payload)
	}

	return nil
}

func (b *Binance) Unsubscribe(ctx context.Context, conn websocket.Conn) error {
	return b.send(ctx, conn, "UNSUBSCRIBE", unsubscribeID)
}

func (b *Binance) send(ctx context.Context, conn websocket.Conn, method string, id int64) error {
	payload, err := sonic.Marshal(request{
		Method: method,
		Params: []string{b.Stream()},
		ID:     id,
	})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return errors.Wrap(err, "write request").With("payload", string(payload))
	}
	return nil
}

func isAck(payload []byte, id int64) bool {
	result := gjson.GetBytes(payload, "result")
	return result.Exists() && result.Type == gjson.Null && gjson.GetBytes(payload, "id").Int() == id
}

type partialBookDepth struct {
	LastUpdateID *uint64     `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"` // [0]price [1]quantity
	Asks         [][2]string `json:"asks"` // [0]price [1]quantity
}

// ParseNext reads one frame and converts a partial book depth update into a
// snapshot. lastUpdateId is carried along but not checked for ordering.
func (b *Binance) ParseNext(ctx context.Context, conn websocket.Conn) (model.Snapshot, error) {
	msgType, payload, err := conn.Read(ctx)
	if err != nil {
		return model.Snapshot{}, errors.Wrap(err, "read binance")
	}
	receivedAt := time.Now()

	return Parse(msgType, payload, receivedAt)
}

// Parse decodes one partial book depth frame.
func Parse(msgType websocket.MessageType, payload []byte, receivedAt time.Time) (model.Snapshot, error) {
	if msgType != websocket.MessageText {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "binance: message type %d", msgType)
	}

	var depth partialBookDepth
	if err := sonic.Unmarshal(payload, &depth); err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "binance: %v: %s", err, payload)
	}
	if depth.LastUpdateID == nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "binance: not a depth update: %s", payload)
	}

	bids, err := model.ParseQuotes(Name, depth.Bids)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "binance bids: %v", err)
	}
	asks, err := model.ParseQuotes(Name, depth.Asks)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "binance asks: %v", err)
	}

	return model.Snapshot{
		Venue:      Name,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   *depth.LastUpdateID,
		ReceivedAt: receivedAt,
	}, nil
}
