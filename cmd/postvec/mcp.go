package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/command"
	"github.com/xxxsen/postvec/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "serve the corpus tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			runner, err := newRunner(cfg, command.WithConfinedStorage())
			if err != nil {
				return err
			}
			server := mcpserver.NewMCPServer("postvec", version)
			mcp.RegisterTools(server, runner)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logutil.GetLogger(ctx).Info("mcp server starting on stdio", zap.String("table", cfg.TableName))

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- mcpserver.ServeStdio(server)
			}()
			select {
			case <-ctx.Done():
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
}
