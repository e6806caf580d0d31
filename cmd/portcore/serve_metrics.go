package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-metrics",
		Short: "Start the background sweepers and serve Prometheus metrics until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a.hardwareCache.Start(ctx)
			a.reservation.Start(ctx)

			mux := http.NewServeMux()
			mux.Handle(a.settings.Metrics.Path, promhttp.Handler())

			server := &http.Server{
				Addr:    a.settings.Metrics.BindAddr,
				Handler: mux,
			}

			waiter := newShutdownWaiter(a.logger)
			waiter.onStop(func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("metrics server shutdown error", "error", err)
				}
			})
			waiter.onStop(a.reservation.Stop)
			waiter.onStop(a.hardwareCache.Stop)

			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("metrics server starting", "addr", a.settings.Metrics.BindAddr, "path", a.settings.Metrics.Path)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serverErr <- err
					return
				}
				serverErr <- nil
			}()

			waiter.wait(ctx)
			cancel()

			if err := <-serverErr; err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}
