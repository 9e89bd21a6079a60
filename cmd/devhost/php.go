package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/devhost/internal/cli"
)

func newPHPCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "php",
		Short: "Manage bundled PHP versions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "versions",
		Short: "List installed PHP versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			v, err := c.PHPVersions(ctx)
			if err != nil {
				return err
			}
			cli.PHPVersions(cmd.OutOrStdout(), v.Versions, v.Current)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <version>",
		Short: "Select the PHP version for sites without their own",
		Long:  "Select the PHP version for sites without their own. Running sites keep their interpreter until restarted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := c.UsePHP(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "using php %s\n", args[0])
			return nil
		},
	})

	return cmd
}
