package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"CredTree/internal/api"
	"CredTree/internal/directory"
	"CredTree/internal/engine"
	"CredTree/internal/genesis"
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
	"CredTree/internal/metrics"
	"CredTree/internal/network"
	"CredTree/internal/sequence"
	"CredTree/internal/snapshot"
	"CredTree/internal/storage"
)

// Node is a running credential host.
type Node struct {
	cfg       *Config
	storage   *storage.Storage
	metrics   *metrics.Metrics
	dir       *directory.Directory
	seq       *sequence.Counter
	engine    *engine.Engine
	transport *network.Server
	api       *api.Server
}

// NewNode opens storage and builds the engine. Nothing listens yet.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg, metrics: metrics.New()}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initEngine(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage opens Pebble and restores a snapshot when asked.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	if n.cfg.SnapshotImport != "" {
		info, err := snapshot.RestoreFile(db, n.cfg.SnapshotImport)
		if err != nil {
			return fmt.Errorf("restore snapshot:\n%w", err)
		}

		logger.Info("snapshot restored",
			"path", n.cfg.SnapshotImport,
			"pairs", info.Pairs,
			"sequence", info.Sequence,
		)
	}

	return nil
}

// initEngine loads the hosted entities and applies genesis to an empty store.
func (n *Node) initEngine() error {
	opts := []directory.Option{
		directory.WithEmitter(ledger.Fanout{n.metrics, engine.EventLogger{}}),
	}
	if n.cfg.CacheSize > 0 {
		opts = append(opts, directory.WithCacheSize(n.cfg.CacheSize))
	}

	dir, err := directory.New(n.storage, opts...)
	if err != nil {
		return fmt.Errorf("load directory:\n%w", err)
	}

	seq, err := sequence.New(n.storage)
	if err != nil {
		return fmt.Errorf("load sequence:\n%w", err)
	}

	if n.cfg.GenesisPath != "" {
		gen, err := genesis.Load(n.cfg.GenesisPath)
		if err != nil {
			return err
		}

		if _, err := genesis.Apply(gen, dir, seq, network.IdentityOf(n.cfg.PrivateKey)); err != nil {
			return fmt.Errorf("apply genesis:\n%w", err)
		}
	}

	n.dir = dir
	n.seq = seq
	n.engine = engine.New(dir, seq, n.metrics)

	return nil
}

// Run starts the transport and the API, then blocks until a signal arrives.
func (n *Node) Run() error {
	transport, err := network.NewServer(network.ServerConfig{
		PrivateKey: n.cfg.PrivateKey,
		ListenAddr: n.cfg.QUICAddress,
	}, n.engine)
	if err != nil {
		return fmt.Errorf("create transport:\n%w", err)
	}

	if err := transport.Start(); err != nil {
		return fmt.Errorf("start transport:\n%w", err)
	}
	n.transport = transport

	if n.cfg.HTTPAddress != "" {
		n.api = api.New(n.cfg.HTTPAddress, n.engine, api.Config{
			Metrics:     n.metrics.Handler(),
			Connections: transport,
			Node:        transport.Identity(),
		})

		if err := n.api.Start(); err != nil {
			return fmt.Errorf("start api:\n%w", err)
		}
	}

	logger.Info("node ready",
		"entities", n.dir.Len(),
		"sequence", n.seq.Current(),
	)

	return n.waitForShutdown()
}

// Export writes a snapshot of the store to path.
func (n *Node) Export(path string) error {
	info, err := snapshot.WriteFile(n.storage, n.seq.Current(), path)
	if err != nil {
		return fmt.Errorf("export snapshot:\n%w", err)
	}

	logger.Info("snapshot written",
		"path", path,
		"pairs", info.Pairs,
		"sequence", info.Sequence,
		"checksum", fmt.Sprintf("%x", info.Checksum[:8]),
	)

	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.transport != nil {
		n.transport.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
