// Package metrics exposes dosing workflow counters to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devadigapratham/microdose/dosing"
)

// Recorder implements dosing.Observer on top of Prometheus collectors.
type Recorder struct {
	events     *prometheus.CounterVec
	scans      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	deviation  prometheus.Histogram
}

// NewRecorder registers the workflow collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microdose",
			Name:      "dosing_events_total",
			Help:      "Dosing events appended to the history, by outcome.",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microdose",
			Name:      "scans_total",
			Help:      "Resolved barcode verifications, by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "microdose",
			Name:      "rejections_total",
			Help:      "Rejected workflow actions, by error kind.",
		}, []string{"kind"}),
		deviation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "microdose",
			Name:      "dosing_deviation_ratio",
			Help:      "Relative deviation of confirmed quantities from their set point.",
			Buckets:   []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.5},
		}),
	}
	reg.MustRegister(r.events, r.scans, r.rejections, r.deviation)
	return r
}

func (r *Recorder) ScanResolved(res dosing.ScanResult) {
	label := "BarcodeValid"
	if res.Err != nil {
		label = string(res.Err.Kind)
	}
	r.scans.WithLabelValues(label).Inc()
}

func (r *Recorder) Recorded(ev dosing.DosingEvent) {
	r.events.WithLabelValues(string(ev.Outcome)).Inc()
	if ev.Outcome == dosing.OutcomeCompleted && ev.SetPoint != nil && *ev.SetPoint != 0 {
		d := (ev.ActualQuantity - *ev.SetPoint) / *ev.SetPoint
		if d < 0 {
			d = -d
		}
		r.deviation.Observe(d)
	}
}

func (r *Recorder) Rejected(err error) {
	kind := "Other"
	var de *dosing.Error
	if errors.As(err, &de) {
		kind = string(de.Kind)
	}
	r.rejections.WithLabelValues(kind).Inc()
}
