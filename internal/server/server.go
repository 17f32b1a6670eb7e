// Package server streams aggregated summaries to gRPC subscribers.
//
// The service is orderbook.OrderbookAggregator/BookSummary, but messages are
// JSON under the "json" content-subtype, not protobuf. Clients generated from
// orderbook.proto with the default codec cannot read the stream; use Client or
// request the json subtype.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/yanun0323/logs"
	"google.golang.org/grpc"

	"aggregator/internal/broadcast"
	"aggregator/internal/obs"
	"aggregator/internal/shutdown"
	"aggregator/pkg/exception"
)

const (
	serviceName      = "orderbook.OrderbookAggregator"
	bookSummaryRoute = "/" + serviceName + "/BookSummary"
)

// Empty is the BookSummary request.
type Empty struct{}

type aggregatorServer interface {
	BookSummary(*Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*aggregatorServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BookSummary",
			Handler:       bookSummaryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "orderbook.proto",
}

func bookSummaryHandler(srv any, stream grpc.ServerStream) error {
	in := new(Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(aggregatorServer).BookSummary(in, stream)
}

// Server serves OrderbookAggregator. Every BookSummary call gets its own hub
// cursor.
type Server struct {
	hub     *broadcast.Hub
	metrics *obs.Metrics
	grpc    *grpc.Server

	stopping context.Context
	stop     context.CancelFunc
}

func New(hub *broadcast.Hub, metrics *obs.Metrics, opts ...grpc.ServerOption) *Server {
	stopping, stop := context.WithCancel(context.Background())
	s := &Server{
		hub:      hub,
		metrics:  metrics,
		grpc:     grpc.NewServer(opts...),
		stopping: stopping,
		stop:     stop,
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// BookSummary forwards every published summary until the hub closes, the
// client goes away or the server stops.
func (s *Server) BookSummary(_ *Empty, stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	defer context.AfterFunc(s.stopping, cancel)()

	sub := s.hub.Subscribe()
	defer sub.Close()
	s.metrics.SubscriberAdded()
	defer s.metrics.SubscriberRemoved()
	logs.Infof("subscriber %s connected", sub.ID)
	defer logs.Infof("subscriber %s disconnected", sub.ID)

	for {
		summary, err := sub.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				logs.Warnf("subscriber %s lagged, skipped %d summaries", sub.ID, lagged.Skipped)
				s.metrics.AddLagged(lagged.Skipped)
				continue
			case errors.Is(err, exception.ErrHubClosed):
				return nil
			case s.stopping.Err() != nil:
				return nil
			default:
				return err
			}
		}

		if err := stream.SendMsg(&summary); err != nil {
			return err
		}
	}
}

// Serve accepts streams on lis until the shutdown signal, then stops
// gracefully and releases the handle.
func (s *Server) Serve(handle *shutdown.Handle, lis net.Listener) error {
	defer handle.Release()

	served := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-handle.Done():
		case <-served:
		}
		s.stop()
		s.grpc.GracefulStop()
	}()

	logs.Infof("serving on %s", lis.Addr())
	err := s.grpc.Serve(lis)
	close(served)
	<-stopped
	logs.Info("exiting server...")

	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(handle *shutdown.Handle, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		handle.Release()
		return err
	}
	return s.Serve(handle, lis)
}

var _ aggregatorServer = (*Server)(nil)
