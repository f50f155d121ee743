// Command k8srelay-server hosts the correlation core behind a gRPC
// Collect endpoint, wiring config, logging, tracing and metrics the way
// cmd/tapio-server wires its own gRPC server.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapio/k8s-relay/pkg/k8srelay"
	"github.com/tapio/k8s-relay/pkg/k8srelay/server"
)

const defaultConfigPath = ""

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "k8srelay-server",
		Short:   "Correlates Kubernetes pod/owner metadata for a downstream eBPF reducer",
		Version: "1.0.0",
		RunE:    run,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to a config file (optional)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "k8srelay-server: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := server.NewTracerProvider(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("build tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracer provider", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	metricsRecorder := k8srelay.NewRecorder(registry)

	relayServer := server.NewServer(
		cfg,
		server.NetSinkDialer{Network: cfg.SinkNetwork, Address: cfg.SinkAddress},
		logger,
		metricsRecorder,
		tracerProvider.Tracer("k8s-relay"),
	)
	grpcServer := relayServer.NewGRPCServer()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("collect endpoint listening", zap.String("address", cfg.ListenAddress))
		errCh <- grpcServer.Serve(listener)
	}()

	var metricsServer *server.MetricsServer
	if cfg.MetricsAddress != "" {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddress, registry)
		go func() {
			logger.Info("metrics endpoint listening", zap.String("address", cfg.MetricsAddress))
			errCh <- metricsServer.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	relayServer.Stop()
	grpcServer.GracefulStop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics server", zap.Error(err))
		}
	}

	return nil
}
