package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sipeed/picopost/pkg/logger"
	"github.com/spf13/cobra"
)

func newOnceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single posting cycle and exit",
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

			stopRelay, err := a.startRelay(ctx)
			if err != nil {
				return err
			}
			defer stopRelay()

			out := a.cycle.RunCycle(ctx)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", out.RequestID, out.Status)
			if out.Err != nil {
				return fmt.Errorf("cycle %s: %w", out.Status, out.Err)
			}
			return nil
		},
	}
}
