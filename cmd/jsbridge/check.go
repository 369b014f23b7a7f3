package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/jsbridge/internal/session"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <dir>",
		Short: "Validate an app manifest and its guest module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := session.Check(cmd.Context(), args[0], logger)
			if err != nil {
				return err
			}

			preload := "-"
			if len(a.Manifest.Preload) > 0 {
				preload = strings.Join(a.Manifest.Preload, ", ")
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary(a.Name()+" "+a.Version()+" ok", []row{
				{label: "module", value: a.Manifest.WasmPath()},
				{label: "size", value: fmt.Sprintf("%d bytes", a.Compiled.SizeBytes)},
				{label: "abi", value: a.Manifest.ABIVersion},
				{label: "entry", value: a.Entry()},
				{label: "preload", value: preload},
			}))
			return nil
		},
	}
}
