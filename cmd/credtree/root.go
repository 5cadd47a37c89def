package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"CredTree/client"
)

// globals are the persistent flags every subcommand shares.
type globals struct {
	quicAddr string
	httpAddr string
	keyPath  string
	timeout  time.Duration
}

func rootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "credtree",
		Short:         "Credential issuance and verification client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.HelpFunc()(cmd, nil)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.quicAddr, "quic", "127.0.0.1:9000", "Node command transport address")
	pf.StringVar(&g.httpAddr, "http", "127.0.0.1:8080", "Node HTTP API address")
	pf.StringVar(&g.keyPath, "key", "credtree.key", "Ed25519 private key file (see keygen)")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "Deadline for each command")

	root.AddCommand(
		keygenCommand(),
		identityCommand(g),
		digestCommand(),
		statusCommand(g),
		entityCommand(g),
		childCommand(g),
		credentialCommand(g),
		proofCommand(g),
		verifyCommand(g),
		rosterCommand(g),
		semesterCommand(g),
	)

	return root
}

// withClient loads the key, connects to the command transport and runs fn
// under the command timeout.
func (g *globals) withClient(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	key, err := loadKey(g.keyPath)
	if err != nil {
		return err
	}

	return g.run(cmd, client.Config{QUICAddr: g.quicAddr, HTTPAddr: g.httpAddr, Key: key}, fn)
}

// withHTTP runs fn against the HTTP API only. No key is needed.
func (g *globals) withHTTP(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	return g.run(cmd, client.Config{HTTPAddr: g.httpAddr}, fn)
}

func (g *globals) run(cmd *cobra.Command, cfg client.Config, fn func(context.Context, *client.Client) error) error {
	if g.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()

	c, err := client.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}
