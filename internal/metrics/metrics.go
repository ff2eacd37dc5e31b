// Package metrics exposes Prometheus metrics for reconciliation and the ledger.
package metrics

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Klingon-tech/monterrey/internal/ledger"
	mlog "github.com/Klingon-tech/monterrey/internal/log"
)

// Namespace prefixes every metric name.
const Namespace = "monterrey"

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal     *prometheus.CounterVec
	TickErrors     prometheus.Counter
	TickDuration   prometheus.Histogram
	Cursor         prometheus.Gauge
	Head           prometheus.Gauge
	Deposits       *prometheus.CounterVec
	DepositUnits   *prometheus.CounterVec
	LedgerEvents   *prometheus.CounterVec
	LastReconciled prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "ticks_total",
			Help:      "Completed reconciliation ticks, by whether a block was reconciled",
		}, []string{"result"}),
		TickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "tick_errors_total",
			Help:      "Failed reconciliation ticks",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "tick_duration_seconds",
			Help:      "Duration of successful reconciliation ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		Cursor: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "cursor_block",
			Help:      "Last reconciled block height",
		}),
		Head: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "head_block",
			Help:      "Latest chain head seen",
		}),
		Deposits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "deposits_total",
			Help:      "Deposits credited, by denomination",
		}, []string{"denom"}),
		DepositUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "deposit_units_total",
			Help:      "Whole ledger units credited, by denomination",
		}, []string{"denom"}),
		LedgerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Committed ledger events, by kind",
		}, []string{"kind"}),
		LastReconciled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watcher",
			Name:      "last_reconciled_timestamp_seconds",
			Help:      "Unix time of the last reconciled block",
		}),
	}
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records a completed tick.
func (m *Metrics) ObserveTick(d time.Duration, worked bool) {
	result := "idle"
	if worked {
		result = "reconciled"
		m.LastReconciled.SetToCurrentTime()
	}
	m.TicksTotal.WithLabelValues(result).Inc()
	m.TickDuration.Observe(d.Seconds())
}

// TickFailed records a failed tick.
func (m *Metrics) TickFailed() {
	m.TickErrors.Inc()
}

// Credited records one deposit credit in ledger units.
func (m *Metrics) Credited(denom string, amount *big.Int) {
	m.Deposits.WithLabelValues(denom).Inc()
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(1e18)).Float64()
	m.DepositUnits.WithLabelValues(denom).Add(units)
}

// SetHead records the chain head.
func (m *Metrics) SetHead(block uint64) {
	m.Head.Set(float64(block))
}

// SetCursor records the reconciliation cursor.
func (m *Metrics) SetCursor(block uint64) {
	m.Cursor.Set(float64(block))
}

// ObserveLedger counts a ledger event. Pass it to ledger.Subscribe.
func (m *Metrics) ObserveLedger(ev ledger.Event) {
	m.LedgerEvents.WithLabelValues(ev.Kind.String()).Inc()
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and serves m in the background.
func Listen(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mlog.Metrics.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
