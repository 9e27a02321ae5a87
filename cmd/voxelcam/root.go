package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"voxelcam.ai/internal/config"
	"voxelcam.ai/internal/logging"
)

type commandContext struct {
	envFile string
	cfg     *config.Config
}

// load reads configuration once per invocation.
func (c *commandContext) load() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) logger(cfg config.Config) (*log.Logger, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	run := newRunCommand(ctx)
	rootCmd := &cobra.Command{
		Use:           "voxelcam",
		Short:         "Automated spectator camera for voxel worlds",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")

	rootCmd.AddCommand(run)
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	return rootCmd
}
