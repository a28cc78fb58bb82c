// Package metrics records pass statistics in a Prometheus registry and
// writes them as a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the collectors of one process.
type Recorder struct {
	reg *prometheus.Registry

	rows         *prometheus.CounterVec
	files        *prometheus.CounterVec
	merges       *prometheus.CounterVec
	placed       prometheus.Counter
	passDuration *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
}

// New returns a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomsort_rows_total",
				Help: "Parts-list rows processed, by outcome",
			},
			[]string{"outcome"},
		),
		files: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomsort_files_placed_total",
				Help: "Files written into the taxonomy",
			},
			[]string{"mode"},
		),
		merges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bomsort_merges_total",
				Help: "Bucket merges attempted, by status",
			},
			[]string{"status"},
		),
		placed: f.NewCounter(prometheus.CounterOpts{
			Name: "bomsort_drawings_placed_total",
			Help: "Drawings placed into merged layouts",
		}),
		passDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bomsort_pass_duration_seconds",
				Help:    "Duration of pipeline passes",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"task"},
		),
		lastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bomsort_last_success_timestamp_seconds",
				Help: "Unix time of the last pass that finished without failures",
			},
			[]string{"task"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// RecordRow counts one classified row by outcome name.
func (r *Recorder) RecordRow(outcome string) {
	r.rows.WithLabelValues(outcome).Inc()
}

// RecordFiles counts copied and converted files.
func (r *Recorder) RecordFiles(copied, converted int) {
	r.files.WithLabelValues("copy").Add(float64(copied))
	r.files.WithLabelValues("convert").Add(float64(converted))
}

// RecordMerge counts one bucket merge.
func (r *Recorder) RecordMerge(ok bool, placed int) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	r.merges.WithLabelValues(status).Inc()
	r.placed.Add(float64(placed))
}

// RecordPass observes a finished pass.
func (r *Recorder) RecordPass(task string, d time.Duration, ok bool, at time.Time) {
	r.passDuration.WithLabelValues(task).Observe(d.Seconds())
	if ok {
		r.lastSuccess.WithLabelValues(task).Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the current values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
