package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/command"
	"github.com/xxxsen/postvec/internal/config"
	"github.com/xxxsen/postvec/internal/filestore"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "postvec",
		Short:         "embed, store and search WordPress posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (defaults apply when empty)")

	for _, op := range operationCommands {
		rootCmd.AddCommand(newOperationCmd(op.name, op.short))
	}
	rootCmd.AddCommand(newOpsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config and starts the logger. Console logging is only
// honored when the command's stdout is not the result channel.
func loadConfig(allowConsole bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, err
	}
	console := cfg.LogConfig.Console && allowConsole
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		console,
	)
	logutil.GetLogger(context.Background()).Debug("config loaded",
		zap.String("config", configPath),
		zap.String("storage_root", cfg.StorageRoot),
	)
	return cfg, nil
}

func newRunner(cfg *config.Config, extra ...command.Option) (*command.Runner, error) {
	opts := append([]command.Option{}, extra...)
	if cfg.SnapshotStore.Type != "" {
		store, err := filestore.New(cfg.SnapshotStore)
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		opts = append(opts, command.WithSnapshotStore(store))
	}
	return command.NewRunner(cfg, opts...), nil
}
