package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/resilience/internal/infra/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health and Prometheus metrics endpoints",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checkers []health.Checker
	if cfg.Database.URL != "" {
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()
		db.StartMetricsCollector(ctx)
		checkers = append(checkers, health.CheckFunc{Component: "postgres", Fn: db.Health})
	}
	if rc := openRedis(ctx); rc != nil {
		defer func() {
			_ = rc.Close()
		}()
		checkers = append(checkers, health.CheckFunc{Component: "redis", Fn: rc.Ping})
	}

	srv := health.NewServer(health.NewMonitor(2*time.Second, checkers...), cfg.Metrics.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	slog.Info("Server started", "port", cfg.Metrics.Port, "checks", len(checkers))
	return g.Wait()
}
