// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// AudioSegmenter - 长音频分段转码工具

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZSC714725/audiosegmenter/internal/conversion"
)

// Metrics holds Prometheus counters and gauges for conversion runs. It
// is a conversion.Sink.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	segmentsTotal    prometheus.Counter
	diagnosticsTotal prometheus.Counter
	runDuration      prometheus.Histogram
	activeRun        prometheus.Gauge
	fraction         prometheus.Gauge
	currentSegment   prometheus.Gauge
	totalSegments    prometheus.Gauge
	speed            prometheus.Gauge
}

// New creates and registers Prometheus metrics for the segmenter.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segmenter_http_requests_total",
			Help: "Total number of HTTP requests by status code",
		}, []string{"code"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "segmenter_runs_total",
			Help: "Finished conversion runs by status and failure kind",
		}, []string{"status", "kind", "cancelled"}),
		segmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_segments_written_total",
			Help: "Segment files reported by finished runs",
		}),
		diagnosticsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segmenter_worker_diagnostics_total",
			Help: "Worker output lines mentioning an error",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "segmenter_run_duration_seconds",
			Help:    "Wall time of finished runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		activeRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_active_run",
			Help: "1 while a run is probing, running or stopping",
		}),
		fraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_run_progress_ratio",
			Help: "Completed fraction of the latest run",
		}),
		currentSegment: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_run_current_segment",
			Help: "Zero-based index of the segment being written",
		}),
		totalSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_run_total_segments",
			Help: "Number of segments the latest run will produce",
		}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segmenter_run_speed_ratio",
			Help: "Media seconds converted per wall second",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.runsTotal,
		m.segmentsTotal,
		m.diagnosticsTotal,
		m.runDuration,
		m.activeRun,
		m.fraction,
		m.currentSegment,
		m.totalSegments,
		m.speed,
	)
	return m
}

// IncRequests counts one HTTP response with the given status code.
func (m *Metrics) IncRequests(code string) {
	m.requestsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) Progress(p conversion.Progress) {
	if p.Phase.Active() {
		m.activeRun.Set(1)
	} else {
		m.activeRun.Set(0)
	}
	m.fraction.Set(p.Fraction)
	m.currentSegment.Set(float64(p.CurrentSegment))
	m.totalSegments.Set(float64(p.TotalSegments))
	m.speed.Set(p.Speed)
}

func (m *Metrics) Log(e conversion.LogEvent) {
	if e.Level == conversion.LogError {
		m.diagnosticsTotal.Inc()
	}
}

func (m *Metrics) Outcome(o conversion.Outcome) {
	kind := ""
	if o.Error != nil {
		kind = string(o.Error.Kind)
	}
	cancelled := "false"
	if o.Cancelled {
		cancelled = "true"
	}
	m.runsTotal.WithLabelValues(string(o.Status), kind, cancelled).Inc()
	m.segmentsTotal.Add(float64(len(o.Files)))
	m.runDuration.Observe(o.Elapsed.Seconds())
	m.activeRun.Set(0)
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
