package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spreadwatch/internal/model"
)

const namespace = "spreadwatch"

// Cycle results used as label values.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Monitor collects per-cycle metrics for the block monitor.
type Monitor struct {
	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	lastBlock    prometheus.Gauge
	lastDiff     prometheus.Gauge
	lastSpread   prometheus.Gauge
	resubscribes prometheus.Counter
}

// NewMonitor builds the monitor metrics and registers them with reg.
func NewMonitor(reg prometheus.Registerer) (*Monitor, error) {
	m := &Monitor{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Monitoring cycles by result and reason.",
		}, []string{"result", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time from head receipt to report, per completed or failed cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_number",
			Help:      "Block number of the last completed cycle.",
		}),
		lastDiff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price_diff",
			Help:      "Absolute price difference of the last completed cycle.",
		}),
		lastSpread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_spread_bps",
			Help:      "Relative spread in basis points of the last completed cycle.",
		}),
		resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resubscribes_total",
			Help:      "Head subscriptions re-established after a failure.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.cycles, m.duration, m.lastBlock, m.lastDiff, m.lastSpread, m.resubscribes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// CycleCompleted records a reported cycle.
func (m *Monitor) CycleCompleted(cycle model.Cycle, elapsed time.Duration) {
	m.cycles.WithLabelValues(ResultOK, "").Inc()
	m.duration.Observe(elapsed.Seconds())
	m.lastBlock.Set(float64(cycle.BlockNumber))
	m.lastDiff.Set(cycle.Diff.InexactFloat64())
	m.lastSpread.Set(cycle.SpreadBps.InexactFloat64())
}

// CycleFailed records an abandoned cycle.
func (m *Monitor) CycleFailed(reason string, elapsed time.Duration) {
	m.cycles.WithLabelValues(ResultFailed, reason).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// CycleSkipped records a head that never produced a cycle.
func (m *Monitor) CycleSkipped(reason string) {
	m.cycles.WithLabelValues(ResultSkipped, reason).Inc()
}

// Resubscribed records a re-established head subscription.
func (m *Monitor) Resubscribed() {
	m.resubscribes.Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	}
}
