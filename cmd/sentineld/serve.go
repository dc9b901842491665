package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/quantshield/hips-sentinel/internal/core/config"
	"github.com/quantshield/hips-sentinel/internal/core/engine"
)

var metricsAddr string

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"serve"},
	Short:   "Run the HIPS engine in the foreground",
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	reg := prometheus.NewRegistry()
	eng, err := engine.New(cfg, reg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	engine.Register(eng)
	defer engine.Unregister(eng)

	if !eng.Initialize() {
		return fmt.Errorf("engine failed to initialize")
	}
	if !eng.Start() {
		return fmt.Errorf("engine failed to start")
	}

	eng.Log.Infow("sentineld started", "metrics_addr", metricsAddr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			eng.Log.Errorw("metrics server failed", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	eng.Log.Infow("shutdown signal received, stopping engine")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)

	eng.Stop()
	eng.Shutdown()
	return nil
}
