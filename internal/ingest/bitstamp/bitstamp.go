package bitstamp

import (
	"context"
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
	Name            model.Venue = "bitstamp"
	DefaultEndpoint             = "wss://ws.bitstamp.net"

	ackTimeout = 10 * time.Second
)

const (
	eventSubscribe        = "bts:subscribe"
	eventUnsubscribe      = "bts:unsubscribe"
	eventSubscribed       = "bts:subscription_succeeded"
	eventRequestReconnect = "bts:request_reconnect"
	eventData             = "data"
)

type Config struct {
	Endpoint string
	Pair     string
}

// Bitstamp streams the live order book channel of one pair.
type Bitstamp struct {
	cfg    Config
	dialer websocket.Dialer
}

func New(cfg Config) *Bitstamp {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return &Bitstamp{
		cfg:    cfg,
		dialer: websocket.NewDialer(cfg.Endpoint),
	}
}

func (b *Bitstamp) Name() model.Venue {
	return Name
}

// Channel returns the order book channel name, e.g. order_book_ethbtc.
func (b *Bitstamp) Channel() string {
	return "order_book_" + strings.ToLower(b.cfg.Pair)
}

func (b *Bitstamp) Connect(ctx context.Context) (websocket.Conn, error) {
	conn, err := b.dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "connect bitstamp")
	}
	return conn, nil
}

type channelData struct {
	Channel string `json:"channel"`
}

type request struct {
	Event string      `json:"event"`
	Data  channelData `json:"data"`
}

func (b *Bitstamp) Subscribe(ctx context.Context, conn websocket.Conn) error {
	if err := b.send(ctx, conn, eventSubscribe); err != nil {
		return errors.Wrap(err, "subscribe bitstamp")
	}

	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	defer cancel()
	_, payload, err := conn.Read(ackCtx)
	if err != nil {
		return errors.Wrap(err, "read bitstamp subscribe response")
	}
	if gjson.GetBytes(payload, "event").String() != eventSubscribed {
		return errors.Wrapf(exception.ErrSubscriptionRejected, "bitstamp: %s", payload)
	}

	return nil
}

func (b *Bitstamp) Unsubscribe(ctx context.Context, conn websocket.Conn) error {
	return b.send(ctx, conn, eventUnsubscribe)
}

func (b *Bitstamp) send(ctx context.Context, conn websocket.Conn, event string) error {
	payload, err := sonic.Marshal(request{
		Event: event,
		Data:  channelData{Channel: b.Channel()},
	})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return errors.Wrap(err, "write request").With("payload", string(payload))
	}
	return nil
}

type orderBook struct {
	Bids           [][2]string `json:"bids"` // [0]price [1]amount
	Asks           [][2]string `json:"asks"` // [0]price [1]amount
	Timestamp      string      `json:"timestamp"`
	Microtimestamp string      `json:"microtimestamp"`
}

func (b *Bitstamp) ParseNext(ctx context.Context, conn websocket.Conn) (model.Snapshot, error) {
	msgType, payload, err := conn.Read(ctx)
	if err != nil {
		return model.Snapshot{}, errors.Wrap(err, "read bitstamp")
	}
	receivedAt := time.Now()

	return Parse(msgType, payload, receivedAt)
}

// Parse decodes one order book frame. A reconnect request is returned as a
// connection error; any other non-data event is malformed.
func Parse(msgType websocket.MessageType, payload []byte, receivedAt time.Time) (model.Snapshot, error) {
	if msgType != websocket.MessageText {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp: message type %d", msgType)
	}

	switch event := gjson.GetBytes(payload, "event").String(); event {
	case eventData:
	case eventRequestReconnect:
		return model.Snapshot{}, exception.ErrReconnectRequested
	default:
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp: unexpected event %q: %s", event, payload)
	}

	data := gjson.GetBytes(payload, "data")
	if !data.IsObject() {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp: missing data: %s", payload)
	}

	var book orderBook
	if err := sonic.UnmarshalString(data.Raw, &book); err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp: %v: %s", err, payload)
	}

	bids, err := model.ParseQuotes(Name, book.Bids)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp bids: %v", err)
	}
	asks, err := model.ParseQuotes(Name, book.Asks)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(exception.ErrMalformedFrame, "bitstamp asks: %v", err)
	}

	return model.Snapshot{
		Venue:      Name,
		Bids:       bids,
		Asks:       asks,
		ReceivedAt: receivedAt,
	}, nil
}
