package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"CredTree/client"
	"CredTree/internal/directory"
)

// entityFlags are the flags describing a new entity.
type entityFlags struct {
	kind        string
	authorities []string
	quorum      int
	sequenced   bool
	roster      bool
	periodStart uint64
	periodEnd   uint64
}

func (f *entityFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.kind, "kind", "leaf", "Entity kind: leaf or composite")
	fs.StringSliceVar(&f.authorities, "authority", nil, "Authority identity (repeatable; defaults to --key)")
	fs.IntVar(&f.quorum, "quorum", 0, "Signatures needed to certify (0 means every authority)")
	fs.BoolVar(&f.sequenced, "sequenced", false, "Allow one outstanding credential per subject")
	fs.BoolVar(&f.roster, "roster", false, "Only enrolled students may be subjects")
	fs.Uint64Var(&f.periodStart, "period-start", 0, "First sequence value accepting registrations")
	fs.Uint64Var(&f.periodEnd, "period-end", 0, "First sequence value after the period (0 disables it)")
}

// spec builds the entity description. self fills in a missing authority list.
func (f *entityFlags) spec(id string, self *client.Client) (client.EntitySpec, error) {
	eid, err := parseIdentity("entity", id)
	if err != nil {
		return client.EntitySpec{}, err
	}

	kind, err := directory.ParseKind(f.kind)
	if err != nil {
		return client.EntitySpec{}, err
	}

	auths, err := parseIdentities("authority", f.authorities)
	if err != nil {
		return client.EntitySpec{}, err
	}
	if len(auths) == 0 {
		auths = append(auths, self.Identity())
	}

	quorum := f.quorum
	if quorum == 0 {
		quorum = len(auths)
	}

	spec := client.EntitySpec{
		ID:          eid,
		Kind:        kind,
		Authorities: auths,
		Quorum:      quorum,
	}
	spec.Config.Sequenced = f.sequenced
	spec.Config.Roster = f.roster
	spec.Config.PeriodStart = f.periodStart
	spec.Config.PeriodEnd = f.periodEnd

	return spec, nil
}

func entityCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create and inspect entities",
	}

	cmd.AddCommand(
		entityCreateCommand(g),
		entitySpawnCommand(g),
		entityListCommand(g),
		entityGetCommand(g),
		entityAuthorizedCommand(g),
		entityQuorumCommand(g),
	)

	return cmd
}

func entityCreateCommand(g *globals) *cobra.Command {
	f := &entityFlags{}

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Host a new top-level entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				spec, err := f.spec(args[0], c)
				if err != nil {
					return err
				}

				seq, err := c.Create(ctx, spec)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	f.addFlags(cmd.Flags())

	return cmd
}

func entitySpawnCommand(g *globals) *cobra.Command {
	f := &entityFlags{}

	cmd := &cobra.Command{
		Use:   "spawn <parent> <id>",
		Short: "Create an entity as a child of a composite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := parseIdentity("parent", args[0])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				spec, err := f.spec(args[1], c)
				if err != nil {
					return err
				}

				seq, err := c.Spawn(ctx, parent, spec)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	f.addFlags(cmd.Flags())

	return cmd
}

func entityListCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List hosted entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withHTTP(cmd, func(_ context.Context, c *client.Client) error {
				entities, err := c.Entities()
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				for _, e := range entities {
					fmt.Fprintf(w, "%s %-9s quorum %d/%d\n", e.ID, e.Kind, e.Quorum, len(e.Authorities))
				}
				return nil
			})
		},
	}
}

func entityGetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}

			return g.withHTTP(cmd, func(_ context.Context, c *client.Client) error {
				e, err := c.Entity(id)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "id:          %s\n", e.ID)
				fmt.Fprintf(w, "kind:        %s\n", e.Kind)
				fmt.Fprintf(w, "quorum:      %d\n", e.Quorum)
				fmt.Fprintf(w, "authorities: %s\n", strings.Join(e.Authorities, ", "))
				fmt.Fprintf(w, "sequenced:   %t\n", e.Sequenced)
				fmt.Fprintf(w, "roster:      %t\n", e.Roster)
				if e.PeriodStart != 0 || e.PeriodEnd != 0 {
					fmt.Fprintf(w, "period:      [%d, %d)\n", e.PeriodStart, e.PeriodEnd)
				}
				if e.Parent != "" {
					fmt.Fprintf(w, "parent:      %s\n", e.Parent)
				}
				if len(e.Children) > 0 {
					fmt.Fprintf(w, "children:    %s\n", strings.Join(e.Children, ", "))
				}
				return nil
			})
		},
	}
}

func entityAuthorizedCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "authorized <entity> <identity>",
		Short: "Report whether identity is an authority of entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}
			id, err := parseIdentity("identity", args[1])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.IsAuthorized(ctx, target, id)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func entityQuorumCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "quorum <entity>",
		Short: "Print the signatures an entity needs to certify",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				n, err := c.QuorumSize(ctx, target)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func childCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Manage the children of a composite",
	}

	add := &cobra.Command{
		Use:   "add <composite> <child>",
		Short: "Attach an existing entity to a composite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("composite", args[0])
			if err != nil {
				return err
			}
			child, err := parseIdentity("child", args[1])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.AddChild(ctx, target, child)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <composite>",
		Short: "List the children of a composite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("composite", args[0])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				children, err := c.Children(ctx, target)
				if err != nil {
					return err
				}

				printList(cmd.OutOrStdout(), children)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list)

	return cmd
}
