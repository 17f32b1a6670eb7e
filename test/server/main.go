// Command server is a local stand-in for both venues. Point binance.endpoint
// at ws://<addr>/binance and bitstamp.endpoint at ws://<addr>/bitstamp.
package main

import (
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	gws "github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

var upgrader = gws.Upgrader{}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "listen address")
	interval := flag.Duration("interval", 100*time.Millisecond, "book update interval")
	levels := flag.Int("levels", 10, "levels per side")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/binance", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, binanceFeed{}, *interval, *levels)
	})
	mux.HandleFunc("/bitstamp", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, bitstampFeed{}, *interval, *levels)
	})

	log.Printf("fake venues on ws://%s/{binance,bitstamp}", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

type feed interface {
	ack(request []byte) any
	book(seq uint64, bids, asks [][2]string) any
}

func serve(w http.ResponseWriter, r *http.Request, f feed, interval time.Duration, levels int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_, request, err := conn.ReadMessage()
	if err != nil {
		return
	}
	log.Printf("%s: %s", r.URL.Path, request)
	ack, err := sonic.Marshal(f.ack(request))
	if err != nil {
		return
	}
	if err := conn.WriteMessage(gws.TextMessage, ack); err != nil {
		return
	}

	// unsubscribe or close ends the session
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, msg, err := conn.ReadMessage()
		if err == nil {
			log.Printf("%s: %s", r.URL.Path, msg)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	mid := 0.07 + rand.Float64()*0.001
	for seq := uint64(1); ; seq++ {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		mid += (rand.Float64() - 0.5) * 0.0001
		bids, asks := randomBook(mid, levels)
		payload, err := sonic.Marshal(f.book(seq, bids, asks))
		if err != nil {
			return
		}
		if err := conn.WriteMessage(gws.TextMessage, payload); err != nil {
			return
		}
	}
}

func randomBook(mid float64, levels int) (bids, asks [][2]string) {
	tick := 0.00001
	for i := range levels {
		bids = append(bids, [2]string{format(mid - tick*float64(i+1)), format(rand.Float64() * 10)})
		asks = append(asks, [2]string{format(mid + tick*float64(i+1)), format(rand.Float64() * 10)})
	}
	return bids, asks
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', 8, 64)
}

type binanceFeed struct{}

func (binanceFeed) ack(request []byte) any {
	return map[string]any{"result": nil, "id": gjson.GetBytes(request, "id").Int()}
}

func (binanceFeed) book(seq uint64, bids, asks [][2]string) any {
	return map[string]any{"lastUpdateId": seq, "bids": bids, "asks": asks}
}

type bitstampFeed struct{}

func (bitstampFeed) ack(request []byte) any {
	return map[string]any{
		"event":   "bts:subscription_succeeded",
		"channel": gjson.GetBytes(request, "data.channel").String(),
		"data":    map[string]any{},
	}
}

func (bitstampFeed) book(_ uint64, bids, asks [][2]string) any {
	now := time.Now()
	return map[string]any{
		"event":   "data",
		"channel": "order_book",
		"data": map[string]any{
			"timestamp":      strconv.FormatInt(now.Unix(), 10),
			"microtimestamp": strconv.FormatInt(now.UnixMicro(), 10),
			"bids":           bids,
			"asks":           asks,
		},
	}
}
