package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/jsbridge/internal/session"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <app>",
		Short: "Run a guest app until its event loop is idle",
		Args:  cobra.ExactArgs(1),
		RunE:  runApp,
	}
	f := cmd.Flags()
	f.StringSlice("app-paths", nil, "Directories holding apps (overrides app_paths)")
	f.Bool("wasm.debug", false, "Log every guest export call")
	f.String("wasm.cache-dir", "", "Persistent compilation cache directory")
	f.Duration("wasm.execution-timeout", 30*time.Second, "Upper bound for one guest export call")
	f.StringSlice("host.preload", nil, "Scripts evaluated before the guest starts")
	f.Int("host.max-events", 0, "Event loop budget, 0 is unlimited")
	f.Duration("host.idle-timeout", 0, "Stop when the next timer is further away than this")
	return cmd
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting jsbridge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	ctx := cmd.Context()
	s, err := session.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	report, runErr := s.Run(ctx, args[0], session.RunOptions{
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), summary(report.App+" "+report.Version, []row{
			{label: "instance", value: report.InstanceID},
			{label: "entry", value: report.Entry.Round(time.Microsecond)},
			{label: "events", value: report.Loop.Events},
			{label: "timers", value: report.Loop.Timers},
			{label: "elapsed", value: report.Loop.Elapsed.Round(time.Millisecond)},
			{label: "invocations", value: report.Host.Invocations},
			{label: "releases", value: report.Host.Releases},
			{label: "bad releases", value: report.Host.BadReleases, warn: report.Host.BadReleases > 0},
			{label: "live objects", value: report.LiveObjects, warn: report.LiveObjects > 0},
			{label: "deferred", value: report.Loop.Deferred, warn: report.Loop.Deferred},
		}))
	}
	return runErr
}
