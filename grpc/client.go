package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the verdict service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for target. Extra dial options are appended to the defaults.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Decide calls VerdictService/Decide.
func (c *Client) Decide(ctx context.Context, req *DecideRequest) (*DecideResponse, error) {
	resp := new(DecideResponse)
	if err := c.conn.Invoke(ctx, decideMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Conn exposes the underlying connection, for the health client.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
