package utils

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanMetrics exposes the scan pipeline's operational counters on a private
// prometheus registry so tests can instantiate it without global state.
type ScanMetrics struct {
	registry *prometheus.Registry

	ScansTotal        *prometheus.CounterVec
	ScanDuration      *prometheus.HistogramVec
	FetchDuration     prometheus.Histogram
	ProviderCalls     *prometheus.CounterVec
	ProviderFailovers prometheus.Counter
	QuotaDenials      *prometheus.CounterVec
	IssuesReported    prometheus.Histogram
}

func NewScanMetrics(enableRuntimeMetrics bool) *ScanMetrics {
	reg := prometheus.NewRegistry()
	if enableRuntimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	m := &ScanMetrics{
		registry: reg,
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11yscan_scans_total",
			Help: "Scans by terminal outcome.",
		}, []string{"outcome", "tier"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11yscan_scan_duration_seconds",
			Help:    "End-to-end scan duration.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a11yscan_fetch_duration_seconds",
			Help:    "Page render duration.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11yscan_provider_calls_total",
			Help: "AI provider calls by provider and result.",
		}, []string{"provider", "result"}),
		ProviderFailovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "a11yscan_provider_failovers_total",
			Help: "Times the analysis chain advanced past a failed provider.",
		}),
		QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "a11yscan_quota_denials_total",
			Help: "Scan requests denied by the quota manager.",
		}, []string{"tier"}),
		IssuesReported: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "a11yscan_issues_per_scan",
			Help:    "Normalized issue count per completed scan.",
			Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.FetchDuration,
		m.ProviderCalls,
		m.ProviderFailovers,
		m.QuotaDenials,
		m.IssuesReported,
	)
	return m
}

func (m *ScanMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *ScanMetrics) ObserveScan(outcome string, tier string, elapsed time.Duration) {
	m.ScansTotal.WithLabelValues(outcome, tier).Inc()
	m.ScanDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Serve runs a /metrics endpoint until ctx is cancelled.
func (m *ScanMetrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server error: %w", err)
	}
}
