// Command concbench runs one of the benchmark server variants:
//
//	concbench reactor [port]
//	concbench single  [port]
//	concbench pooled  [port] [threads]
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchktools/concbench/app"
	"github.com/searchktools/concbench/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "concbench",
		Short: "HTTP/1.1 servers for comparing concurrency strategies",
	}
	root.AddCommand(
		variantCommand(config.VariantReactor, "[port]", "Single-threaded reactor with a CPU worker pool and delay scheduler"),
		variantCommand(config.VariantSingle, "[port]", "One connection at a time, blocking I/O"),
		variantCommand(config.VariantPooled, "[port] [threads]", "Fixed worker pool, one worker per connection, blocking I/O"),
	)
	return root
}

func variantCommand(v config.Variant, usage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(v) + " " + usage,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New(v)
			if err := cfg.ApplyArgs(args); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
