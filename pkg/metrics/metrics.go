// Package metrics records build pipeline metrics in a private prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Label names
	LabelVariant = "variant"
	LabelStage   = "stage"
	LabelStatus  = "status"

	// Stage values
	StageIngest    = "ingest"
	StageCompile   = "compile"
	StageSerialize = "serialize"
	StageCatalog   = "catalog"

	// Status values
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder holds the build metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	BuildsTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Keys          *prometheus.GaugeVec
	Entries       *prometheus.GaugeVec
	ArtifactBytes *prometheus.GaugeVec
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dictbuild_builds_total",
				Help: "Number of dictionary builds by variant and outcome",
			},
			[]string{LabelVariant, LabelStatus},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dictbuild_stage_duration_seconds",
				Help:    "Time spent in each build pipeline stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{LabelVariant, LabelStage},
		),
		Keys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dictbuild_trie_keys",
				Help: "Distinct surface forms in the last artifact",
			},
			[]string{LabelVariant},
		),
		Entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dictbuild_entries",
				Help: "Entries in the last artifact",
			},
			[]string{LabelVariant},
		),
		ArtifactBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dictbuild_artifact_bytes",
				Help: "Size of the last artifact on disk",
			},
			[]string{LabelVariant},
		),
	}
	r.registry.MustRegister(r.BuildsTotal, r.StageDuration, r.Keys, r.Entries, r.ArtifactBytes)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// StartStage starts timing a stage. Call the returned func when it ends.
func (r *Recorder) StartStage(variant, stage string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.StageDuration.WithLabelValues(variant, stage).Observe(time.Since(start).Seconds())
	}
}

// ObserveArtifact records the size of a finished artifact.
func (r *Recorder) ObserveArtifact(variant string, keys, entries int, bytes int64) {
	if r == nil {
		return
	}
	r.Keys.WithLabelValues(variant).Set(float64(keys))
	r.Entries.WithLabelValues(variant).Set(float64(entries))
	r.ArtifactBytes.WithLabelValues(variant).Set(float64(bytes))
}

// BuildDone counts a finished build.
func (r *Recorder) BuildDone(variant string, err error) {
	if r == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	r.BuildsTotal.WithLabelValues(variant, status).Inc()
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
