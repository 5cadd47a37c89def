// Package client talks to a credtree node: commands over the authenticated
// QUIC transport, read-only queries over the HTTP API.
package client

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"CredTree/internal/command"
	"CredTree/internal/network"
	"CredTree/internal/types"
)

// Client connects to one node.
type Client struct {
	key      ed25519.PrivateKey // key authenticates every command
	conn     *network.Client    // conn is nil when no QUIC address was given
	httpAddr string             // httpAddr is the HTTP API address (e.g. "127.0.0.1:8080")
}

// Config locates a node.
type Config struct {
	QUICAddr string             // QUICAddr is the command transport address
	HTTPAddr string             // HTTPAddr is the read-only API address
	Key      ed25519.PrivateKey // Key is the caller's identity key
}

// New connects to the node's command transport when cfg.QUICAddr is set.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{key: cfg.Key, httpAddr: cfg.HTTPAddr}

	if cfg.QUICAddr == "" {
		return c, nil
	}

	conn, err := network.Dial(ctx, cfg.QUICAddr, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("connect:\n%w", err)
	}
	c.conn = conn

	return c, nil
}

// Identity returns the identity commands are executed as.
func (c *Client) Identity() types.Identity {
	return network.IdentityOf(c.key)
}

// Node returns the identity the node authenticated as.
func (c *Client) Node() types.Identity {
	if c.conn == nil {
		return types.Identity{}
	}
	return c.conn.Server()
}

// Close closes the transport connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Do sends cmd and returns the response. Error codes come back as errors
// that match the node's sentinels with errors.Is.
func (c *Client) Do(ctx context.Context, cmd *command.Command) (*command.Response, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("no command transport configured")
	}

	raw, err := c.conn.Request(ctx, command.Encode(cmd))
	if err != nil {
		return nil, fmt.Errorf("%s:\n%w", cmd.Op, err)
	}

	resp, err := command.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decode response:\n%w", cmd.Op, err)
	}

	if err := resp.Err(); err != nil {
		return resp, err
	}

	return resp, nil
}
