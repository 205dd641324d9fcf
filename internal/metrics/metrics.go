// Package metrics counts what each run did and dumps it as a Prometheus
// textfile next to the run's results.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Post stages
const (
	StageFetched  = "fetched"
	StageRecent   = "recent"
	StageRetained = "retained"
)

// Metrics holds all Prometheus metrics for a run
type Metrics struct {
	registry *prometheus.Registry

	Units          *prometheus.CounterVec
	Posts          *prometheus.CounterVec
	UnitDuration   *prometheus.HistogramVec
	MediaDownloads prometheus.Counter
	Artifacts      *prometheus.CounterVec
	LastRun        prometheus.Gauge
}

// New registers the run metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscout_units_total",
			Help: "Processed units by mode and status",
		}, []string{"mode", "status"}),
		Posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscout_posts_total",
			Help: "Posts seen at each pipeline stage",
		}, []string{"stage"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendscout_unit_duration_seconds",
			Help:    "Wall time per unit",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		MediaDownloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendscout_media_downloads_total",
			Help: "Images saved to the media directory",
		}),
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendscout_artifacts_total",
			Help: "Files written by kind",
		}, []string{"kind"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendscout_last_run_timestamp_seconds",
			Help: "Unix time the run finished",
		}),
	}
	m.registry.MustRegister(m.Units, m.Posts, m.UnitDuration, m.MediaDownloads, m.Artifacts, m.LastRun)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
