package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sipeed/picopost/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the liveness endpoint and post on schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := wireApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	logger.InfoCF("picopost", "Starting", map[string]any{
		"version":  version,
		"mode":     a.cfg.Mode,
		"interval": a.cfg.PostInterval.String(),
		"cron":     a.cfg.PostCron,
	})

	stopRelay, err := a.startRelay(ctx)
	if err != nil {
		return err
	}
	defer stopRelay()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.health.Start(ctx)
	})
	g.Go(func() error {
		return a.sched.Run(ctx)
	})

	err = g.Wait()
	logger.InfoC("picopost", "Shutdown complete")
	return err
}
