package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/kioskpower/core/metrics"
)

// PromSink records schedule traffic in Prometheus metrics.
type PromSink struct {
	writes       *prometheus.CounterVec
	writeLatency *prometheus.HistogramVec
	writeDays    prometheus.Counter
	fetches      *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	skips        *prometheus.CounterVec
	pushes       *prometheus.CounterVec
	notices      *prometheus.CounterVec
}

// NewPromSink registers schedule metrics on the default Prometheus
// registerer. The Prometheus server should be started separately with
// StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_writes_total",
			Help: "Batch schedule writes by source and outcome",
		}, []string{"source", "success"}),
		writeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedule_write_latency_seconds",
			Help:    "Latency of batch schedule writes",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		writeDays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_write_days_total",
			Help: "Day entries carried by batch writes",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_fetches_total",
			Help: "Schedule reads by outcome",
		}, []string{"outcome"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedule_fetch_latency_seconds",
			Help:    "Latency of schedule reads",
			Buckets: prometheus.DefBuckets,
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_autosave_skipped_total",
			Help: "Auto-saves skipped because nothing changed",
		}, []string{"reason"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_plan_pushes_total",
			Help: "Day plans pushed to terminals by acknowledgment",
		}, []string{"acknowledged"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "operator_notices_total",
			Help: "Operator notices by severity and source",
		}, []string{"severity", "source"}),
	}

	var err error
	if s.writes, err = register(reg, s.writes); err != nil {
		return nil, err
	}
	if s.writeLatency, err = register(reg, s.writeLatency); err != nil {
		return nil, err
	}
	if s.writeDays, err = register(reg, s.writeDays); err != nil {
		return nil, err
	}
	if s.fetches, err = register(reg, s.fetches); err != nil {
		return nil, err
	}
	if s.fetchLatency, err = register(reg, s.fetchLatency); err != nil {
		return nil, err
	}
	if s.skips, err = register(reg, s.skips); err != nil {
		return nil, err
	}
	if s.pushes, err = register(reg, s.pushes); err != nil {
		return nil, err
	}
	if s.notices, err = register(reg, s.notices); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the collector already registered under the same name, if
// any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(C); ok {
				return exist, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordWrite implements coremetrics.Recorder.
func (s *PromSink) RecordWrite(ev coremetrics.WriteEvent) error {
	s.writes.WithLabelValues(string(ev.Source), strconv.FormatBool(ev.Success)).Inc()
	s.writeLatency.WithLabelValues(string(ev.Source)).Observe(ev.Latency.Seconds())
	if ev.Success {
		s.writeDays.Add(float64(ev.Days))
	}
	return nil
}

// RecordFetch implements coremetrics.Recorder.
func (s *PromSink) RecordFetch(ev coremetrics.FetchEvent) error {
	outcome := "error"
	switch {
	case ev.Discarded:
		outcome = "discarded"
	case ev.Success:
		outcome = "ok"
	}
	s.fetches.WithLabelValues(outcome).Inc()
	s.fetchLatency.Observe(ev.Latency.Seconds())
	return nil
}

// RecordSkip implements coremetrics.SkipRecorder.
func (s *PromSink) RecordSkip(ev coremetrics.SkipEvent) error {
	s.skips.WithLabelValues(ev.Reason).Inc()
	return nil
}

// RecordPush implements coremetrics.PushRecorder.
func (s *PromSink) RecordPush(ev coremetrics.PushEvent) error {
	s.pushes.WithLabelValues(strconv.FormatBool(ev.Acknowledged)).Inc()
	return nil
}

// RecordNotice counts an operator notice.
func (s *PromSink) RecordNotice(severity, source string) {
	s.notices.WithLabelValues(severity, source).Inc()
}
