package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"aggregator/internal/model"
)

// Client reads the summary stream of a running aggregator.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security. Extra options are appended
// to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// BookSummary opens a stream. It ends when ctx is cancelled or the server
// closes it.
func (c *Client) BookSummary(ctx context.Context) (*SummaryStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], bookSummaryRoute)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SummaryStream{stream: stream}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type SummaryStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next summary. io.EOF marks a cleanly closed stream.
func (s *SummaryStream) Recv() (model.Summary, error) {
	var summary model.Summary
	if err := s.stream.RecvMsg(&summary); err != nil {
		return model.Summary{}, err
	}
	return summary, nil
}
