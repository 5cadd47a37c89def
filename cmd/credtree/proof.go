package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"CredTree/client"
)

func proofCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Aggregate and fetch subject proofs",
	}

	var digests []string

	aggregate := &cobra.Command{
		Use:   "aggregate <entity> <subject>",
		Short: "Fold a subject's credentials into a stored aggregate proof",
		Long: "Fold a subject's credentials into a stored aggregate proof. Without --digest " +
			"the subject's full list is used (composites: their certified own credentials).",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}
			list, err := parseDigests("digest", digests)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				agg, err := c.Aggregate(ctx, target, subject, list)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), agg)
				return nil
			})
		},
	}
	aggregate.Flags().StringSliceVar(&digests, "digest", nil, "Digest to include (repeatable)")

	get := &cobra.Command{
		Use:   "get <entity> <subject>",
		Short: "Print a subject's stored aggregate proof",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				agg, err := c.GetProof(ctx, target, subject)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), agg)
				return nil
			})
		},
	}

	cid := &cobra.Command{
		Use:   "cid <entity> <subject>",
		Short: "Print a subject's aggregate proof as a content identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withHTTP(cmd, func(_ context.Context, c *client.Client) error {
				p, err := c.SubjectProof(target, subject)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), p.CID)
				return nil
			})
		},
	}

	cmd.AddCommand(aggregate, get, cid)

	return cmd
}
