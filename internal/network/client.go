package network

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"CredTree/internal/types"
)

// defaultRequestTimeout applies when the request context has no deadline.
const defaultRequestTimeout = 30 * time.Second

// Client is an authenticated connection to a Server.
type Client struct {
	conn   *quic.Conn
	server types.Identity
	closed atomic.Bool
}

// Dial connects to addr, authenticating as key.
func Dial(ctx context.Context, addr string, key ed25519.PrivateKey) (*Client, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}

	tc, err := tlsConfig(key)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, addr, tc, &quic.Config{
		MaxIdleTimeout:  defaultIdleTimeout,
		KeepAlivePeriod: defaultIdleTimeout / 3,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", addr, err)
	}

	server, err := peerIdentity(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "no identity")
		return nil, err
	}

	return &Client{conn: conn, server: server}, nil
}

// Server returns the identity the server authenticated as.
func (c *Client) Server() types.Identity {
	return c.server
}

// Request sends data on a new stream and waits for the reply.
func (c *Client) Request(ctx context.Context, data []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	response, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.conn.CloseWithError(0, "closed")
}
