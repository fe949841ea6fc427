package worker

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/onoacademic/campusid/internal/observability/metrics"
)

// Pinger is a backend the probe worker can check
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeWorker periodically pings every backend, publishes its availability
// and logs each up/down transition once.
type ProbeWorker struct {
	backends map[string]Pinger
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu   sync.Mutex
	last map[string]bool
}

// NewProbeWorker creates a new probe worker
func NewProbeWorker(backends map[string]Pinger, logger *slog.Logger, interval time.Duration) *ProbeWorker {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := 2 * time.Second
	if interval > 0 && interval < timeout {
		timeout = interval
	}
	return &ProbeWorker{
		backends: backends,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		last:     make(map[string]bool, len(backends)),
	}
}

// Start runs the probe loop until ctx is cancelled
func (w *ProbeWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("backend probe disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("backend probe started", slog.Duration("interval", w.interval))
	w.ProbeOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("backend probe stopped")
			return
		case <-ticker.C:
			w.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce pings every backend and returns the availability of each
func (w *ProbeWorker) ProbeOnce(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(w.backends))
	for _, name := range slices.Sorted(maps.Keys(w.backends)) {
		status[name] = w.probe(ctx, name, w.backends[name])
	}
	return status
}

func (w *ProbeWorker) probe(ctx context.Context, name string, p Pinger) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	up := err == nil
	metrics.ObserveBackendProbe(name, up, time.Since(start))

	w.mu.Lock()
	prev, seen := w.last[name]
	w.last[name] = up
	w.mu.Unlock()

	switch {
	case !up && (!seen || prev):
		w.logger.Warn("backend down", slog.String("backend", name), slog.String("error", err.Error()))
	case up && seen && !prev:
		w.logger.Info("backend recovered", slog.String("backend", name))
	}
	return up
}
