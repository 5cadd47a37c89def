package main

import (
	"context"

	"github.com/spf13/cobra"

	"CredTree/client"
)

func semesterCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "semester",
		Short: "Group a composite's children under semesters",
		Long: "Group a composite's children under semesters. A semester is a digest, " +
			"for example the output of `credtree digest --text spring2026`.",
	}

	var courses []string

	register := &cobra.Command{
		Use:   "register <composite> <semester>",
		Short: "Register the --course children under a semester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, semester, err := targetAndDigest(args)
			if err != nil {
				return err
			}
			list, err := parseIdentities("course", courses)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				seq, err := c.RegisterSemester(ctx, target, semester, list)
				if err != nil {
					return err
				}

				printApplied(cmd.OutOrStdout(), seq)
				return nil
			})
		},
	}
	register.Flags().StringSliceVar(&courses, "course", nil, "Child course of the semester (repeatable)")

	get := &cobra.Command{
		Use:   "get <composite> <semester>",
		Short: "List the courses of a semester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, semester, err := targetAndDigest(args)
			if err != nil {
				return err
			}

			return g.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				list, err := c.Semester(ctx, target, semester)
				if err != nil {
					return err
				}

				printList(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.AddCommand(register, get)

	return cmd
}
