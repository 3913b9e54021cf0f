package main

import (
	"fmt"

	"github.com/sipeed/picopost/pkg/config"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "picopost",
		Short:         "Scheduled AI posting bot with a Discord image relay",
		Long:          "picopost generates short posts with an LLM, optionally obtains an image from an image bot over a Discord relay channel, and publishes the result to Twitter on a schedule.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(opts),
		newOnceCmd(opts),
	)

	return rootCmd
}

// setup loads configuration and initialises logging. Errors are fatal to the command.
func setup(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.Config{
		Environment: cfg.Log.Environment,
		Level:       cfg.Log.Level,
		Service:     "picopost",
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
