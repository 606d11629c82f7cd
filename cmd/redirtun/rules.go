package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/die-net/redirtun/internal/firewall"
)

func newRulesCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the firewall setup and restore command sequences for a configuration without executing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			driver, err := firewall.New(cfg.Firewall)
			if err != nil {
				return err
			}
			fwCfg, err := cfg.ToFirewallConfig()
			if err != nil {
				return err
			}

			setup, err := driver.PlanSetup(fwCfg)
			if err != nil {
				return fmt.Errorf("plan setup: %w", err)
			}
			restore, err := driver.PlanRestore(fwCfg)
			if err != nil {
				return fmt.Errorf("plan restore: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "# setup")
			for _, c := range setup {
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "# restore")
			for _, c := range restore {
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
			}

			return nil
		},
	}

	registerSharedFlags(cmd, f)

	return cmd
}
