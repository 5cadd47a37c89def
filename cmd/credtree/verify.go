package main

import (
	"context"

	"github.com/spf13/cobra"

	"CredTree/client"
)

func verifyCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify credentials, proofs and trees",
	}

	var children []string

	credential := &cobra.Command{
		Use:   "credential <entity> <subject> [digest]...",
		Short: "Check a claim against a stored aggregate proof",
		Long: "Check a claim against a stored aggregate proof. A leaf takes the claimed " +
			"aggregate; a composite takes its own digests plus --child for each " +
			"child whose proof is folded in.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}
			claimed, err := parseDigests("digest", args[2:])
			if err != nil {
				return err
			}
			kids, err := parseIdentities("child", children)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.Verify(ctx, target, subject, claimed, kids)
				if err != nil {
					return err
				}

				printVerdict(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
	credential.Flags().StringSliceVar(&children, "child", nil, "Child folded into a composite claim (repeatable)")

	tree := &cobra.Command{
		Use:   "tree <composite> <subject>",
		Short: "Verify every stored aggregate below a composite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.VerifyTree(ctx, target, subject)
				if err != nil {
					return err
				}

				printVerdict(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}

	all := &cobra.Command{
		Use:   "all <entity> <subject>",
		Short: "Verify every credential issued to a subject is certified",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.VerifyIssued(ctx, target, subject)
				if err != nil {
					return err
				}

				printVerdict(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}

	cmd.AddCommand(credential, tree, all)

	return cmd
}
