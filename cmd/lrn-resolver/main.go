package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/lrn-resolver/internal/config"
	"github.com/Sternrassler/lrn-resolver/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:          "lrn-resolver",
		Short:        "Adaptive bulk LRN lookups for phone numbers",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			logging.Setup(cfg.Logging())
			log.Debug().
				Str("endpoint", cfg.EndpointURL).
				Str("cache_backend", cfg.CacheBackend).
				Msg("Configuration loaded")
			return nil
		},
	}

	cmd.AddCommand(resolveCmd(cfg))
	cmd.AddCommand(serveCmd(cfg))
	return cmd
}
