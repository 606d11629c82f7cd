package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/redirtun"
	"github.com/die-net/redirtun/internal/socksclient"
)

func newRunCmd() *cobra.Command {
	f := &sharedFlags{}
	var (
		tunnelCmd string
		socksUser string
		socksPass string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install redirection, supervise the tunnel, and forward connections until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			driver, err := firewall.New(cfg.Firewall)
			if err != nil {
				return err
			}

			return redirtun.Run(cmd.Context(), redirtun.Options{
				Config:    cfg,
				Driver:    driver,
				SocksAuth: socksclient.Auth{Username: socksUser, Password: socksPass},
				TunnelCmd: tunnelCmd,
				Logger:    logger,
			})
		},
	}

	registerSharedFlags(cmd, f)
	cmd.Flags().StringVar(&tunnelCmd, "tunnel-cmd", "ssh", "External binary to supervise as the tunnel child")
	cmd.Flags().StringVar(&socksUser, "socks-user", "", "Username for the upstream SOCKS5 proxy, if it requires authentication")
	cmd.Flags().StringVar(&socksPass, "socks-pass", "", "Password for the upstream SOCKS5 proxy, if it requires authentication")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging, including the planned firewall command sequences")

	return cmd
}
