package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"argus/util/goroutine"
)

// MetricsServer exposes the Prometheus registry and a health endpoint
type MetricsServer struct {
	server *http.Server
	logger *zap.SugaredLogger
}

// NewMetricsServer creates a metrics server listening on addr
func NewMetricsServer(addr string, logger *zap.SugaredLogger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", healthCheck).Methods("GET")

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router, mainly for tests
func (m *MetricsServer) Handler() http.Handler {
	return m.server.Handler
}

// Start serves in the background
func (m *MetricsServer) Start() {
	go func() {
		defer goroutine.Recover("metrics-server", m.logger)
		m.logger.Infow("Metrics server listening", "addr", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorw("Metrics server failed", "addr", m.server.Addr, "error", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (m *MetricsServer) Shutdown(ctx context.Context) {
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warnw("Metrics server shutdown error", "error", err)
	}
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
