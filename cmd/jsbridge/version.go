package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/jsbridge/pkg/protocol"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jsbridge %s (commit %s, built %s, abi %d)\n",
				version, commit, date, protocol.Version)
		},
	}
}
