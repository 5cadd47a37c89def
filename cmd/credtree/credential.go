package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"CredTree/client"
	"CredTree/internal/types"
)

func credentialCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Issue, sign, confirm and revoke credentials",
		Long: "Issue, sign, confirm and revoke credentials.\n\n" +
			"Digest arguments are 64 hex characters, or @path to hash a document.",
	}

	cmd.AddCommand(
		credentialRegisterCommand(g),
		credentialConfirmCommand(g),
		credentialRevokeCommand(g),
		credentialShowCommand(g),
		credentialCertifiedCommand(g),
		credentialListCommand(g),
		credentialNonceCommand(g),
		credentialCheckCommand(g),
		credentialRegisterRootCommand(g),
		credentialEvidenceCommand(g),
	)

	return cmd
}

func credentialRegisterCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "register <entity> <subject> <digest>",
		Short: "Issue a credential, or add a signature to a pending one",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}
			digest, err := parseDigest("digest", args[2])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.Register(ctx, target, subject, digest)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), digest)
				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}
}

func credentialConfirmCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <entity> <digest>",
		Short: "Accept a credential as its subject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, digest, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.Confirm(ctx, target, digest)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}
}

func credentialRevokeCommand(g *globals) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <entity> <digest>",
		Short: "Withdraw a credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, digest, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			var why types.Digest
			if reason != "" {
				why = types.Digest(blake3.Sum256([]byte(reason)))
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.Revoke(ctx, target, digest, why)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason text; its digest is recorded")

	return cmd
}

func credentialShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity> <digest>",
		Short: "Show a credential proof, or its revocation record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, digest, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				w := cmd.OutOrStdout()

				p, err := c.Proof(ctx, target, digest)
				if err == nil {
					certified, err := c.Certified(ctx, target, digest)
					if err != nil {
						return err
					}

					fmt.Fprintf(w, "digest:    %s\n", p.Digest)
					fmt.Fprintf(w, "subject:   %s\n", p.Subject)
					fmt.Fprintf(w, "sequence:  %d\n", p.InsertedSequence)
					fmt.Fprintf(w, "confirmed: %t\n", p.SubjectConfirmed)
					fmt.Fprintf(w, "certified: %t\n", certified)
					if !p.PreviousDigest.IsZero() {
						fmt.Fprintf(w, "previous:  %s\n", p.PreviousDigest)
					}
					for _, s := range p.Signers {
						fmt.Fprintf(w, "signer:    %s\n", s)
					}
					return nil
				}

				r, rerr := c.Revocation(ctx, target, digest)
				if rerr != nil {
					return err
				}

				fmt.Fprintf(w, "digest:   %s\n", r.Digest)
				fmt.Fprintf(w, "revoked:  at sequence %d\n", r.RevokedSequence)
				fmt.Fprintf(w, "issuer:   %s\n", r.Issuer)
				fmt.Fprintf(w, "subject:  %s\n", r.Subject)
				fmt.Fprintf(w, "reason:   %s\n", r.Reason)
				return nil
			})
		},
	}
}

func credentialCertifiedCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "certified <entity> <digest>",
		Short: "Report whether a credential reached quorum and was confirmed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, digest, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.Certified(ctx, target, digest)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func credentialListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list <entity> <subject>",
		Short: "List the digests issued to a subject, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				digests, err := c.Digests(ctx, target, subject)
				if err != nil {
					return err
				}

				printList(cmd.OutOrStdout(), digests)
				return nil
			})
		},
	}
}

func credentialNonceCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "nonce <entity> <subject>",
		Short: "Print how many credentials a subject has been issued",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				n, err := c.Nonce(ctx, target, subject)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func credentialCheckCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check <entity> <digest>...",
		Short: "Report whether every listed credential is certified",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}
			digests, err := parseDigests("digest", args[1:])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.CheckCredentials(ctx, target, digests)
				if err != nil {
					return err
				}

				printVerdict(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func credentialRegisterRootCommand(g *globals) *cobra.Command {
	var children []string

	cmd := &cobra.Command{
		Use:   "register-root <composite> <subject> <digest> <root>",
		Short: "Issue a composite credential bound to its children's proofs",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, subject, err := targetAndSubject(args)
			if err != nil {
				return err
			}
			digest, err := parseDigest("digest", args[2])
			if err != nil {
				return err
			}
			root, err := parseDigest("root", args[3])
			if err != nil {
				return err
			}
			kids, err := parseIdentities("child", children)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.RegisterRoot(ctx, target, subject, digest, root, kids)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&children, "child", nil, "Child whose proof feeds the root (repeatable)")

	return cmd
}

func credentialEvidenceCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "evidence <entity> <digest>",
		Short: "Show the children a root credential was issued over",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, digest, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ev, err := c.Evidence(ctx, target, digest)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if len(ev.Witnesses) == 0 {
					fmt.Fprintln(w, "no evidence")
					return nil
				}

				fmt.Fprintf(w, "root:      %s\n", ev.Root)
				for _, id := range ev.Witnesses {
					fmt.Fprintf(w, "witness:   %s\n", id)
				}
				return nil
			})
		},
	}
}

func targetAndSubject(args []string) (types.Identity, types.Identity, error) {
	target, err := parseIdentity("entity", args[0])
	if err != nil {
		return types.Identity{}, types.Identity{}, err
	}

	subject, err := parseIdentity("subject", args[1])
	if err != nil {
		return types.Identity{}, types.Identity{}, err
	}

	return target, subject, nil
}

func targetAndDigest(args []string) (types.Identity, types.Digest, error) {
	target, err := parseIdentity("entity", args[0])
	if err != nil {
		return types.Identity{}, types.Digest{}, err
	}

	digest, err := parseDigest("digest", args[1])
	if err != nil {
		return types.Identity{}, types.Digest{}, err
	}

	return target, digest, nil
}
