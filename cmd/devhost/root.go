package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/devhost/internal/client"
	"github.com/edvin/devhost/internal/config"
)

type rootOptions struct {
	addr    string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "devhost",
		Short: "Serve local PHP sites behind nginx with .test hostnames",
		Long: `devhost discovers every directory under the sites root, runs one PHP
process per site on its own loopback port and fronts them all with nginx
at <name>.test.

Run "devhost serve" to start the daemon; the other commands talk to it.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "devhost version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "daemon address (default $DEVHOST_LISTEN_ADDR or 127.0.0.1:7070)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "API token (default $DEVHOST_API_TOKEN)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "how long to wait for the daemon")

	cmd.AddCommand(
		newServeCmd(),
		newStartCmd(opts),
		newStopCmd(opts),
		newRestartCmd(opts),
		newStatusCmd(opts),
		newSitesCmd(opts),
		newToggleCmd(opts),
		newPHPCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// client builds an API client from the flags, falling back to the
// environment the daemon reads.
func (o *rootOptions) client() (*client.Client, error) {
	addr, token := o.addr, o.token
	if addr == "" || token == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if addr == "" {
			addr = cfg.ListenAddr
		}
		if token == "" {
			token = cfg.APIToken
		}
	}
	return client.New(addr, token, zerolog.New(os.Stderr).Level(zerolog.WarnLevel)), nil
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}
