package k8srelay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes correlator/session state as Prometheus metrics,
// grounded on the promauto/prometheus.NewRegistry() pattern used by
// pkg/exports/prometheus in the teacher repo.
type Recorder struct {
	podsWaiting          prometheus.Gauge
	ownersWaiting        prometheus.Gauge
	ownersDeletedPending prometheus.Gauge
	recordsEmitted       *prometheus.CounterVec
	resyncTotal          prometheus.Counter
	sessionsActive       prometheus.Gauge
}

// NewRecorder registers k8srelay's metrics on reg. Passing a fresh
// *prometheus.Registry per test avoids duplicate-registration panics; a
// shared process-wide registry can also be passed in production wiring.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		podsWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "k8srelay",
			Name:      "pods_waiting",
			Help:      "Number of pods currently blocked on a missing owner.",
		}),
		ownersWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "k8srelay",
			Name:      "owners_waiting",
			Help:      "Number of distinct owner ids with at least one waiting pod.",
		}),
		ownersDeletedPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "k8srelay",
			Name:      "owners_deleted_pending",
			Help:      "Number of tombstoned owners not yet purged.",
		}),
		recordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "k8srelay",
			Name:      "records_emitted_total",
			Help:      "Records emitted to the downstream writer, by record type.",
		}, []string{"type"}),
		resyncTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "k8srelay",
			Name:      "resync_total",
			Help:      "Number of times a session forced a resync, on waiting-set overflow or a shutdown signal.",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "k8srelay",
			Name:      "sessions_active",
			Help:      "Number of Collect sessions currently open.",
		}),
	}
}

func (r *Recorder) SetPodsWaiting(n int) {
	if r == nil {
		return
	}
	r.podsWaiting.Set(float64(n))
}

func (r *Recorder) SetOwnersWaiting(n int) {
	if r == nil {
		return
	}
	r.ownersWaiting.Set(float64(n))
}

func (r *Recorder) SetOwnersDeletedPending(n int) {
	if r == nil {
		return
	}
	r.ownersDeletedPending.Set(float64(n))
}

func (r *Recorder) RecordEmitted(recordType string) {
	if r == nil {
		return
	}
	r.recordsEmitted.WithLabelValues(recordType).Inc()
}

func (r *Recorder) IncResync() {
	if r == nil {
		return
	}
	r.resyncTotal.Inc()
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.sessionsActive.Inc()
}

func (r *Recorder) SessionEnded() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}
