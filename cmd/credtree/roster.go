package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"CredTree/client"
	"CredTree/internal/types"
)

func rosterCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Manage the students of a roster entity",
	}

	// studentOp runs one of the mutations taking an entity and a student.
	studentOp := func(use, short string, op func(*client.Client, context.Context, types.Identity, types.Identity) (uint64, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <entity> <student>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				target, student, err := targetAndSubject(args)
				if err != nil {
					return err
				}

				return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
					seq, err := op(c, ctx, target, student)
					if err != nil {
						return err
					}

					printApplied(cmd.OutOrStdout(), seq)
					return nil
				})
			},
		}
	}

	renounce := &cobra.Command{
		Use:   "renounce <entity>",
		Short: "Leave a roster as the --key student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.Renounce(ctx, target)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}

	check := &cobra.Command{
		Use:   "check <entity> <student>",
		Short: "Report whether a student is enrolled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, student, err := targetAndSubject(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ok, err := c.IsEnrolled(ctx, target, student)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <entity>",
		Short: "List the enrolled students",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseIdentity("entity", args[0])
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				students, err := c.Students(ctx, target)
				if err != nil {
					return err
				}

				printList(cmd.OutOrStdout(), students)
				return nil
			})
		},
	}

	cmd.AddCommand(
		studentOp("enroll", "Add a student to the roster", (*client.Client).Enroll),
		studentOp("unenroll", "Remove a student from the roster", (*client.Client).Unenroll),
		renounce,
		check,
		list,
	)

	return cmd
}
