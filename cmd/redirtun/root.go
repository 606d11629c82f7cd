package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redirtun",
		Short: "Transparent TCP redirector that forwards outbound traffic through a remote SOCKS5 proxy",
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newRunCmd(),
		newRulesCmd(),
	)

	return root
}
