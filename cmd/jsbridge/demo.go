package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/jsbridge/internal/session"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in tik/tok routine in-process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			result, err := session.Demo(cmd.Context(), nil, logger)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), summary("demo", []row{
				{label: "effects", value: strings.Join(result.Effects, " ")},
				{label: "events", value: result.Loop.Events},
				{label: "timers", value: result.Loop.Timers},
				{label: "invocations", value: result.Host.Invocations},
				{label: "guest state", value: fmt.Sprintf("%+v", result.Guest)},
			}))
			return nil
		},
	}
}
