// Package metrics exposes cycle and delivery counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeNoData    = "no_data"
	OutcomeUnchanged = "unchanged"
	OutcomeNotified  = "notified"
	OutcomeFailed    = "failed"
)

// Recorder records per-source activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prom.Registry
	cycles        *prom.CounterVec
	cycleDuration *prom.HistogramVec
	deliveries    *prom.CounterVec
	stateWrites   *prom.CounterVec
	launches      *prom.CounterVec
	panics        *prom.CounterVec
}

// NewRecorder constructs a Recorder on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prom.NewRegistry(),
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "littlebird",
			Name:      "cycles_total",
			Help:      "Completed poll cycles by source and outcome",
		}, []string{"source", "outcome"}),
		cycleDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "littlebird",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles",
			Buckets:   prom.DefBuckets,
		}, []string{"source"}),
		deliveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "littlebird",
			Name:      "deliveries_total",
			Help:      "Notification attempts by source and result",
		}, []string{"source", "result"}),
		stateWrites: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "littlebird",
			Name:      "state_writes_total",
			Help:      "State writes by source and result",
		}, []string{"source", "result"}),
		launches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "littlebird",
			Name:      "worker_launches_total",
			Help:      "Cycle workers launched by the scheduler",
		}, []string{"source"}),
		panics: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "littlebird",
			Name:      "worker_panics_total",
			Help:      "Cycle workers that panicked",
		}, []string{"source"}),
	}
	r.registry.MustRegister(r.cycles, r.cycleDuration, r.deliveries, r.stateWrites, r.launches, r.panics)
	r.registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return r
}

// ObserveCycle counts a finished cycle by outcome and records its duration.
func (r *Recorder) ObserveCycle(source, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(source, outcome).Inc()
	r.cycleDuration.WithLabelValues(source).Observe(d.Seconds())
}

// IncDelivery counts a notification attempt.
func (r *Recorder) IncDelivery(source string, success bool) {
	if r == nil {
		return
	}
	r.deliveries.WithLabelValues(source, result(success)).Inc()
}

// IncStateWrite counts a state store write.
func (r *Recorder) IncStateWrite(source string, success bool) {
	if r == nil {
		return
	}
	r.stateWrites.WithLabelValues(source, result(success)).Inc()
}

// IncLaunch counts a worker started by the scheduler.
func (r *Recorder) IncLaunch(source string) {
	if r == nil {
		return
	}
	r.launches.WithLabelValues(source).Inc()
}

// IncPanic counts a worker that panicked.
func (r *Recorder) IncPanic(source string) {
	if r == nil {
		return
	}
	r.panics.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
