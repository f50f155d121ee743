package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes /metrics and /health over plain HTTP, grounded on
// pkg/metrics.Exporter's promhttp.HandlerFor + net/http.ServeMux wiring.
type MetricsServer struct {
	httpServer *http.Server
}

// NewMetricsServer builds a MetricsServer bound to addr, serving reg's
// metrics.
func NewMetricsServer(addr string, reg *prometheus.Registry) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &MetricsServer{
		httpServer: &http.Server{Addr: addr, Handler: mux},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (m *MetricsServer) ListenAndServe() error {
	if err := m.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if err := m.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
