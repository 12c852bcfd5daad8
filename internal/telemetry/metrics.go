// Package telemetry records run metrics for a transform on a private
// Prometheus registry and exports them in the node-exporter textfile
// format, which suits a one-shot batch tool better than a scrape endpoint.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of a single run.
type Metrics struct {
	registry *prometheus.Registry

	processed prometheus.Counter
	regions   prometheus.Counter
	duration  prometheus.Gauge
	voxels    *prometheus.GaugeVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doublelog",
			Name:      "processed_voxels_total",
			Help:      "Voxels passed through the double-log transform (mask bypass excluded).",
		}),
		regions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doublelog",
			Name:      "regions_total",
			Help:      "Regions dispatched to workers.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doublelog",
			Name:      "transform_duration_seconds",
			Help:      "Wall time of the last transform.",
		}),
		voxels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "doublelog",
			Name:      "output_voxels",
			Help:      "Output voxels by class.",
		}, []string{"class"}),
	}
	m.registry.MustRegister(m.processed, m.regions, m.duration, m.voxels)
	return m
}

// Add increments the processed voxel counter. It makes Metrics usable as
// the engine's progress sink.
func (m *Metrics) Add(n float64) {
	m.processed.Add(n)
}

// ObserveRun records the region count and duration of a transform.
func (m *Metrics) ObserveRun(regions int, elapsed time.Duration) {
	m.regions.Add(float64(regions))
	m.duration.Set(elapsed.Seconds())
}

// SetVoxelClass sets the number of output voxels of a class such as
// "finite", "nan" or "masked".
func (m *Metrics) SetVoxelClass(class string, n int) {
	m.voxels.WithLabelValues(class).Set(float64(n))
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("error writing metrics file: %w", err)
	}
	return nil
}
