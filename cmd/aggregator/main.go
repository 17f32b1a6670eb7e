package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"aggregator/internal/book"
	"aggregator/internal/broadcast"
	"aggregator/internal/bus"
	"aggregator/internal/ingest"
	"aggregator/internal/ingest/binance"
	"aggregator/internal/ingest/bitstamp"
	"aggregator/internal/obs"
	"aggregator/internal/ops"
	"aggregator/internal/server"
	"aggregator/internal/shutdown"
)

const metricsShutdownTimeout = 3 * time.Second

func main() {
	if err := run(); err != nil {
		logs.Errorf("aggregator: %+v", err)
		os.Exit(1)
	}
}

type taskResult struct {
	name string
	err  error
}

func run() error {
	configPath := flag.String("config", "settings.toml", "settings file (toml, yaml or json)")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	stopProfiler, err := startProfiler(cfg.Profiling, cfg.TradingPair)
	if err != nil {
		return err
	}
	defer stopProfiler()

	metrics := obs.NewMetrics()
	if cfg.Metrics.Address != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Address, metrics)
		defer stopMetrics()
	}

	coord := shutdown.New()
	queue := bus.NewQueue(cfg.App.QueueCapacity)
	hub := broadcast.NewHub(cfg.App.BroadcastCapacity)

	venues := []ingest.Venue{
		binance.New(binance.Config{
			Endpoint: cfg.Binance.Endpoint,
			Pair:     cfg.TradingPair,
			Depth:    cfg.Binance.Depth,
			Latency:  cfg.Binance.Latency,
		}),
		bitstamp.New(bitstamp.Config{
			Endpoint: cfg.Bitstamp.Endpoint,
			Pair:     cfg.TradingPair,
		}),
	}

	results := make(chan taskResult, len(venues)+2)
	pending := 0
	spawn := func(name string, task func(*shutdown.Handle) error) {
		pending++
		handle := coord.Subscribe()
		go func() {
			results <- taskResult{name: name, err: task(handle)}
		}()
	}

	connectors := make([]*ingest.Connector, 0, len(venues))
	for _, venue := range venues {
		connectors = append(connectors, ingest.NewConnector(venue, queue.NewProducer(), metrics))
	}
	for i, connector := range connectors {
		spawn(venues[i].Name().String(), connector.Run)
	}

	engine := book.NewEngine(book.NewBook(cfg.App.SummarySize), queue, hub, metrics)
	spawn("orderbook", engine.Run)

	srv := server.New(hub, metrics)
	spawn("server", func(handle *shutdown.Handle) error {
		return srv.ListenAndServe(handle, cfg.Server.Address)
	})

	logs.Infof("aggregating %s, serving on %s", cfg.TradingPair, cfg.Server.Address)

	// A task ending cleanly leaves the others running; a task error stops the process.
	var failed error
wait:
	for pending > 0 {
		select {
		case <-sys.Shutdown():
			logs.Info("shutting down...")
			break wait
		case res := <-results:
			pending--
			if res.err != nil {
				failed = res.err
				logs.Errorf("%s: %+v", res.name, res.err)
				break wait
			}
			logs.Infof("%s stopped", res.name)
		}
	}

	coord.Shutdown()
	for ; pending > 0; pending-- {
		res := <-results
		if res.err != nil {
			failed = errors.Join(failed, res.err)
			logs.Errorf("%s: %+v", res.name, res.err)
		}
	}

	logs.Info("bye")
	return failed
}

func serveMetrics(addr string, metrics *obs.Metrics) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("metrics listener: %+v", err)
		}
	}()
	logs.Infof("metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
