package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trakn-sync-service/internal/config"
	"trakn-sync-service/internal/logger"
)

var configPath string

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trakn-sync",
		Short:         "Offline write queue and sync agent for Trakn",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(newServeCmd(), newQueueCmd(), newHistoryCmd())
	return root
}

// loadConfig loads the config and initialises the global logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	return cfg, nil
}
