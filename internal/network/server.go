// Package network carries commands over QUIC. Each party presents a
// self-signed ed25519 certificate; the server treats the client's public key
// as the caller identity of every command sent on that connection.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"CredTree/internal/logger"
	"CredTree/internal/types"
)

const (
	// defaultHandleTimeout bounds the handling of one request.
	defaultHandleTimeout = 30 * time.Second

	// defaultIdleTimeout closes silent connections.
	defaultIdleTimeout = 60 * time.Second
)

// Handler answers one request from an authenticated caller.
type Handler interface {
	Handle(ctx context.Context, caller types.Identity, request []byte) []byte
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, caller types.Identity, request []byte) []byte

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, caller types.Identity, request []byte) []byte {
	return f(ctx, caller, request)
}

// ServerConfig holds the configuration for a Server.
type ServerConfig struct {
	PrivateKey    ed25519.PrivateKey // PrivateKey authenticates the server
	ListenAddr    string             // ListenAddr is the UDP address to listen on
	HandleTimeout time.Duration      // HandleTimeout bounds a single request
	IdleTimeout   time.Duration      // IdleTimeout closes idle connections
}

// Server accepts QUIC connections and answers one request per bidirectional stream.
type Server struct {
	identity      types.Identity
	listenAddr    string
	handleTimeout time.Duration
	tlsConfig     *tls.Config
	quicConfig    *quic.Config
	handler       Handler

	listener *quic.Listener
	conns    atomic.Int64
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server that passes requests to h.
func NewServer(cfg ServerConfig, h Handler) (*Server, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	if h == nil {
		return nil, fmt.Errorf("handler is required")
	}

	tc, err := tlsConfig(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	handleTimeout := cfg.HandleTimeout
	if handleTimeout == 0 {
		handleTimeout = defaultHandleTimeout
	}

	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		identity:      IdentityOf(cfg.PrivateKey),
		listenAddr:    cfg.ListenAddr,
		handleTimeout: handleTimeout,
		tlsConfig:     tc,
		quicConfig:    &quic.Config{MaxIdleTimeout: idle},
		handler:       h,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Identity returns the identity clients see for this server.
func (s *Server) Identity() types.Identity {
	return s.identity
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	return int(s.conns.Load())
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.listenAddr, s.tlsConfig, s.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("command transport listening", "addr", s.Addr(), "identity", s.identity.Short())

	return nil
}

// Close stops accepting, closes every connection and waits for handlers.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.wg.Wait()

	return err
}

// acceptLoop accepts connections until the server closes.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn authenticates a connection and serves its streams.
func (s *Server) serveConn(conn *quic.Conn) {
	defer s.wg.Done()

	caller, err := peerIdentity(conn.ConnectionState().TLS)
	if err != nil {
		logger.Warn("rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
		conn.CloseWithError(1, "no identity")
		return
	}

	s.conns.Add(1)
	defer s.conns.Add(-1)

	logger.Debug("client connected", "remote", conn.RemoteAddr().String(), "caller", caller.Short())

	go func() {
		select {
		case <-s.ctx.Done():
			conn.CloseWithError(0, "server closing")
		case <-conn.Context().Done():
		}
	}()

	var streams sync.WaitGroup
	defer streams.Wait()

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			logger.Debug("client disconnected", "caller", caller.Short(), "error", err)
			return
		}

		streams.Add(1)
		go func() {
			defer streams.Done()
			s.serveStream(caller, stream)
		}()
	}
}

// serveStream reads one request, runs the handler and writes the reply.
func (s *Server) serveStream(caller types.Identity, stream *quic.Stream) {
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(s.handleTimeout))

	request, err := readFrame(stream)
	if err != nil {
		logger.Debug("bad request frame", "caller", caller.Short(), "error", err)
		stream.CancelRead(1)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.handleTimeout)
	defer cancel()

	response := s.handler.Handle(ctx, caller, request)

	if err := writeFrame(stream, response); err != nil {
		logger.Debug("write response", "caller", caller.Short(), "error", err)
	}
}
