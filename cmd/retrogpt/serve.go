package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retrogpt/client/internal/config"
	"github.com/retrogpt/client/internal/devserver"
)

func serveCmd() *cobra.Command {
	var fragmentDelay time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory dev backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			server := devserver.New(devserver.WithFragmentDelay(fragmentDelay))
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			log.Printf("RetroGPT dev backend listening on %s", cfg.Server.Addr)
			return runServer(ctx, srv)
		},
	}

	cmd.Flags().DurationVar(&fragmentDelay, "fragment-delay", 40*time.Millisecond, "pause between streamed fragments")
	return cmd
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
