package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aggregator/internal/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:50051", "aggregator address")
	count := flag.Int("n", 0, "stop after n summaries, 0 streams until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := server.Dial(*addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer client.Close()

	stream, err := client.BookSummary(ctx)
	if err != nil {
		log.Fatalf("book summary: %v", err)
	}

	start := time.Now()
	for i := 1; *count == 0 || i <= *count; i++ {
		summary, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			log.Fatalf("recv: %v", err)
		}

		fmt.Printf("#%d spread: %.8f\n", i, summary.Spread)
		for j := range summary.Asks {
			ask := summary.Asks[len(summary.Asks)-1-j]
			fmt.Printf("  ask %-9s %.8f x %.8f\n", ask.Exchange, ask.Price, ask.Amount)
		}
		for _, bid := range summary.Bids {
			fmt.Printf("  bid %-9s %.8f x %.8f\n", bid.Exchange, bid.Price, bid.Amount)
		}
	}

	fmt.Println("stream closed after", time.Since(start))
}
