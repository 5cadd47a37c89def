package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"CredTree/client"
)

func statusCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withHTTP(cmd, func(_ context.Context, c *client.Client) error {
				s, err := c.Status()
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "node:        %s\n", s.Node)
				fmt.Fprintf(w, "sequence:    %d\n", s.Sequence)
				fmt.Fprintf(w, "entities:    %d\n", s.Entities)
				fmt.Fprintf(w, "connections: %d\n", s.Connections)
				return nil
			})
		},
	}
}
