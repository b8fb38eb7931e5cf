// Package metrics exposes engine counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SyncApplies       prometheus.Counter
	SyncApplyFailures *prometheus.CounterVec
	DockTransitions   *prometheus.CounterVec
	SessionCrashes    *prometheus.CounterVec
	Screenshots       *prometheus.CounterVec
}

// New registers the counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncApplies: f.NewCounter(prometheus.CounterOpts{
			Name: "thordock_sync_applies_total",
			Help: "Layout applies that moved at least one window",
		}),
		SyncApplyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thordock_sync_apply_failures_total",
			Help: "Per-window layout apply failures",
		}, []string{"role"}),
		DockTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thordock_dock_transitions_total",
			Help: "Dock and undock attempts by result",
		}, []string{"result"}),
		SessionCrashes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thordock_session_crashes_total",
			Help: "Sessions that ended in Crashed by role and fault kind",
		}, []string{"role", "kind"}),
		Screenshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thordock_screenshots_total",
			Help: "Screenshot requests by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) SyncApplied() {
	if m == nil {
		return
	}
	m.SyncApplies.Inc()
}

func (m *Metrics) SyncApplyFailed(role string) {
	if m == nil {
		return
	}
	m.SyncApplyFailures.WithLabelValues(role).Inc()
}

// DockTransition records result values such as "docked", "undocked",
// "forced", "rejected" or "failed".
func (m *Metrics) DockTransition(result string) {
	if m == nil {
		return
	}
	m.DockTransitions.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionCrashed(role, kind string) {
	if m == nil {
		return
	}
	m.SessionCrashes.WithLabelValues(role, kind).Inc()
}

func (m *Metrics) Screenshot(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Screenshots.WithLabelValues(result).Inc()
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
