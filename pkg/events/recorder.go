package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder is a Sink that mirrors events into Prometheus
// counters.
type PrometheusRecorder struct {
	eventsTotal  *prometheus.CounterVec
	filesChanged *prometheus.CounterVec
	removedTotal *prometheus.CounterVec
	repairRounds prometheus.Histogram
}

// NewPrometheusRecorder registers the autopatch metrics on the default
// registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopatch_events_total",
				Help: "Total orchestration events by type and repository",
			},
			[]string{"type", "repo"},
		),
		filesChanged: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopatch_files_changed_total",
				Help: "Total files committed by repository",
			},
			[]string{"repo"},
		),
		removedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopatch_sanitizer_removed_total",
				Help: "Total polluted paths removed by the sanitizer",
			},
			[]string{"repo"},
		),
		repairRounds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autopatch_repair_rounds",
				Help:    "Repair rounds used per run, observed at run end",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
	}
}

// Emit implements Sink.
func (p *PrometheusRecorder) Emit(event Event) {
	p.eventsTotal.WithLabelValues(string(event.Type), event.Repo).Inc()

	if event.Files > 0 {
		p.filesChanged.WithLabelValues(event.Repo).Add(float64(event.Files))
	}
	if len(event.Removed) > 0 {
		p.removedTotal.WithLabelValues(event.Repo).Add(float64(len(event.Removed)))
	}
	if event.Type == TypeSucceeded || event.Type == TypeFailed || event.Type == TypeExhaustedRetries {
		p.repairRounds.Observe(float64(event.Round))
	}
}
