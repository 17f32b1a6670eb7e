package binance

import (
	"context"
	"errors"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/internal/ingest/ingesttest"
	"aggregator/internal/model"
	"aggregator/pkg/exception"
	"aggregator/pkg/websocket"
)

const depthFrame = `{"lastUpdateId":123,"bids":[["0.07","1.5"],["0.06","2"]],"asks":[["0.08","3"]]}`

func TestStream(t *testing.T) {
	b := New(Config{Pair: "ETHBTC", Depth: 10, Latency: "100ms"})
	assert.Equal(t, "ethbtc@depth10@100ms", b.Stream())
	assert.Equal(t, Name, b.Name())
}

func TestParse(t *testing.T) {
	now := time.Now()
	snap, err := Parse(websocket.MessageText, []byte(depthFrame), now)
	require.NoError(t, err)

	assert.Equal(t, Name, snap.Venue)
	assert.Equal(t, uint64(123), snap.UpdateID)
	assert.Equal(t, now, snap.ReceivedAt)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, model.Quote{Venue: Name, Price: 0.07, Amount: 1.5}, snap.Bids[0])
	assert.Equal(t, model.Quote{Venue: Name, Price: 0.08, Amount: 3}, snap.Asks[0])
	assert.Equal(t, "binance", snap.Bids[0].Level().Exchange)
}

func TestParseMalformed(t *testing.T) {
	testCases := []struct {
		desc    string
		msgType websocket.MessageType
		payload string
	}{
		{desc: "binary frame", msgType: websocket.MessageBinary, payload: depthFrame},
		{desc: "not json", msgType: websocket.MessageText, payload: "garbage"},
		{desc: "ack", msgType: websocket.MessageText, payload: `{"result":null,"id":1}`},
		{desc: "bad price", msgType: websocket.MessageText, payload: `{"lastUpdateId":1,"bids":[["x","1"]],"asks":[]}`},
		{desc: "overflow price", msgType: websocket.MessageText, payload: `{"lastUpdateId":1,"bids":[["1e400","1"]],"asks":[]}`},
		{desc: "negative amount", msgType: websocket.MessageText, payload: `{"lastUpdateId":1,"bids":[],"asks":[["1","-1"]]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse(tc.msgType, []byte(tc.payload), time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrMalformedFrame), "%+v", err)
		})
	}
}

func TestSubscribeRejected(t *testing.T) {
	for _, ack := range []string{`{"result":null,"id":7}`, `{"id":1}`, `{"result":["x"],"id":1}`} {
		conn := ingesttest.NewConn(ingesttest.Text(ack))
		err := New(Config{Pair: "ethbtc", Depth: 10, Latency: "100ms"}).Subscribe(context.Background(), conn)
		assert.True(t, errors.Is(err, exception.ErrSubscriptionRejected), "ack %s: %+v", ack, err)
	}
}

func TestSession(t *testing.T) {
	received := make(chan string, 4)
	url := ingesttest.NewServer(t, func(conn *gws.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		for _, reply := range []string{`{"result":null,"id":1}`, depthFrame, "garbage"} {
			if err := conn.WriteMessage(gws.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
		if _, msg, err = conn.ReadMessage(); err == nil {
			received <- string(msg)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := New(Config{Endpoint: url, Pair: "ETHBTC", Depth: 10, Latency: "100ms"})
	conn, err := b.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close(websocket.CloseNormal, "")

	require.NoError(t, b.Subscribe(ctx, conn))
	assert.JSONEq(t, `{"method":"SUBSCRIBE","params":["ethbtc@depth10@100ms"],"id":1}`, <-received)

	snap, err := b.ParseNext(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(123), snap.UpdateID)
	assert.Equal(t, model.Venue("binance"), snap.Venue)

	_, err = b.ParseNext(ctx, conn)
	assert.True(t, errors.Is(err, exception.ErrMalformedFrame), "%+v", err)

	require.NoError(t, b.Unsubscribe(ctx, conn))
	assert.JSONEq(t, `{"method":"UNSUBSCRIBE","params":["ethbtc@depth10@100ms"],"id":2}`, <-received)
}

func TestParseNextClosed(t *testing.T) {
	conn := ingesttest.NewConn()
	_ = conn.Close(websocket.CloseNormal, "")

	_, err := New(Config{}).ParseNext(context.Background(), conn)
	require.Error(t, err)
	assert.False(t, errors.Is(err, exception.ErrMalformedFrame))
}
