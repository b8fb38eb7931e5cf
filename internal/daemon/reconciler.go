package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/thordock/thordock/internal/clock"
)

// DefaultWatchInterval is how often the reconciler checks that located
// windows still exist.
const DefaultWatchInterval = time.Second

// WindowChecker crashes sessions whose window has disappeared.
type WindowChecker interface {
	CheckWindows()
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Reconciler periodically checks for windows that vanished without their
// process exiting.
type Reconciler struct {
	interval time.Duration
	clock    clock.Clock
	checker  WindowChecker
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, checker WindowChecker) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		interval: interval,
		clock:    clk,
		checker:  checker,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("window watch started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("window watch stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

func (r *Reconciler) reconcile() {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("window watch panic recovered", "error", err)
		}
	}()
	r.checker.CheckWindows()
}

// ReconcileNow triggers an immediate pass.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
