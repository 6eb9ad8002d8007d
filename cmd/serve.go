package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwbudde/crabalign/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
	rateLimit float64
	burst     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that accepts alignment jobs, streams their progress
over SSE and websockets, exposes Prometheus metrics on /metrics and
persists finished results to the configured store.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().Float64Var(&rateLimit, "rate-limit", 20, "Requests per second (0 disables limiting)")
	serveCmd.Flags().IntVar(&burst, "burst", 40, "Rate limiter burst size")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	sc := cfg.Server
	if cmd.Flags().Changed("addr") {
		sc.Addr = serveAddr
	}
	if cmd.Flags().Changed("rate-limit") {
		sc.RateLimit = rateLimit
	}
	if cmd.Flags().Changed("burst") {
		sc.Burst = burst
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.NewServer(sc.Addr, st, server.Options{
		RateLimit: sc.RateLimit,
		Burst:     sc.Burst,
		Workers:   cfg.Solve.Workers,
		Optimizer: newOptimizer,
		JobTTL:    sc.JobTTL,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Signal received, shutting down", "timeout", sc.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
