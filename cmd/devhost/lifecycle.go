package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/devhost/internal/cli"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the proxy and every site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := c.Start(ctx)
			if err != nil {
				return err
			}
			cli.Sites(cmd.OutOrStdout(), res.Sites)
			cli.Warnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy, every site and every dev tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := c.Stop(ctx)
			if err != nil {
				return err
			}
			cli.Status(cmd.OutOrStdout(), res.Running)
			cli.Warnings(cmd.ErrOrStderr(), res.Warnings)
			return nil
		},
	}
}

func newRestartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop everything, then start everything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			res, err := c.Restart(ctx)
			if err != nil {
				return err
			}
			cli.Warnings(cmd.ErrOrStderr(), res.Warnings)
			if !res.Success {
				return fmt.Errorf("restart failed: %s", res.Error)
			}
			cli.Sites(cmd.OutOrStdout(), res.Sites)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the site stack is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			running, err := c.Status(ctx)
			if err != nil {
				return err
			}
			cli.Status(cmd.OutOrStdout(), running)
			return nil
		},
	}
}

func newSitesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sites",
		Aliases: []string{"ls"},
		Short:   "List sites with their ports and state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			sites, err := c.Sites(ctx)
			if err != nil {
				return err
			}
			cli.Sites(cmd.OutOrStdout(), sites)
			return nil
		},
	}
}

func newToggleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <site>",
		Short: "Start a stopped site or stop a running one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := c.Toggle(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "toggling %s\n", args[0])
			return nil
		},
	}
}
