// Package metrics exposes the copier's operational counters over
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/tradecopier/internal/ports"
)

// Prometheus implements ports.Metrics over a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	cycleDuration    prometheus.Histogram
	cyclesTotal      prometheus.Counter
	submissionsTotal *prometheus.CounterVec
	fillsTotal       prometheus.Counter
	closeBysTotal    prometheus.Counter
	repricesTotal    prometheus.Counter
	donorsConnected  prometheus.Gauge
	linkedPositions  prometheus.Gauge

	server *http.Server
}

// New builds the registry and all instruments.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "copier_cycle_duration_seconds",
			Help:    "Duration of one reconciliation cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copier_cycles_total",
			Help: "Reconciliation cycles run.",
		}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copier_submissions_total",
			Help: "Trade requests submitted to the client broker.",
		}, []string{"action", "outcome"}),
		fillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copier_fills_total",
			Help: "Opening orders observed filled.",
		}),
		closeBysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copier_close_bys_total",
			Help: "Close-by operations completed.",
		}),
		repricesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copier_reprices_total",
			Help: "Pending-order price modifications.",
		}),
		donorsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copier_donors_connected",
			Help: "Donor sources currently online.",
		}),
		linkedPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copier_linked_positions",
			Help: "Live donor→client position links.",
		}),
	}

	p.registry.MustRegister(
		p.cycleDuration, p.cyclesTotal, p.submissionsTotal, p.fillsTotal,
		p.closeBysTotal, p.repricesTotal, p.donorsConnected, p.linkedPositions,
	)
	return p
}

// Serve starts the /metrics listener in the background.
func (p *Prometheus) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		slog.Info("metrics: listening", "addr", addr)
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server stopped", "err", err)
		}
	}()
}

// Shutdown stops the listener, if one was started.
func (p *Prometheus) Shutdown(ctx context.Context) {
	if p.server == nil {
		return
	}
	if err := p.server.Shutdown(ctx); err != nil {
		slog.Warn("metrics: shutdown", "err", err)
	}
}

func (p *Prometheus) ObserveCycle(d time.Duration) {
	p.cyclesTotal.Inc()
	p.cycleDuration.Observe(d.Seconds())
}

func (p *Prometheus) IncSubmission(action string, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	p.submissionsTotal.WithLabelValues(action, outcome).Inc()
}

func (p *Prometheus) IncFill()    { p.fillsTotal.Inc() }
func (p *Prometheus) IncCloseBy() { p.closeBysTotal.Inc() }
func (p *Prometheus) IncReprice() { p.repricesTotal.Inc() }

func (p *Prometheus) SetDonorsConnected(n int) { p.donorsConnected.Set(float64(n)) }
func (p *Prometheus) SetLinkedPositions(n int) { p.linkedPositions.Set(float64(n)) }

var _ ports.Metrics = (*Prometheus)(nil)
