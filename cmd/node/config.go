package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"CredTree/internal/logger"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the read-only HTTP API listen address. Empty disables it.
	HTTPAddress string

	// QUICAddress is the command transport listen address.
	QUICAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the node's Ed25519 key; its public half is the node identity.
	PrivateKey ed25519.PrivateKey

	// LogLevel is the minimum log level.
	LogLevel slog.Level

	// CacheSize bounds each ledger's decoded proof cache.
	CacheSize int

	// GenesisPath is a JSON file of entities created when the store is empty.
	GenesisPath string

	// SnapshotExport writes a snapshot to this path and exits.
	SnapshotExport string

	// SnapshotImport restores this snapshot into an empty store before starting.
	SnapshotImport string
}

// parseFlags parses command-line flags into Config.
func parseFlags(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("credtree-node", flag.ContinueOnError)

	var level string

	fs.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	fs.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address (empty disables)")
	fs.StringVar(&cfg.QUICAddress, "quic", ":9000", "QUIC command transport address")
	fs.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	fs.StringVar(&level, "log-level", "info", "Log level: debug, info, warn, error")
	fs.IntVar(&cfg.CacheSize, "cache-size", 0, "Proof cache entries per ledger (0 uses the default)")
	fs.StringVar(&cfg.GenesisPath, "genesis", "", "Genesis entities JSON applied to an empty store")
	fs.StringVar(&cfg.SnapshotExport, "snapshot-export", "", "Write a snapshot to this path and exit")
	fs.StringVar(&cfg.SnapshotImport, "snapshot-import", "", "Restore a snapshot into an empty store before starting")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.LogLevel, err = logger.ParseLevel(level); err != nil {
		return nil, err
	}

	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative")
	}

	if cfg.SnapshotExport != "" && cfg.SnapshotImport != "" {
		return nil, fmt.Errorf("-snapshot-export and -snapshot-import are exclusive")
	}

	return cfg, nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
