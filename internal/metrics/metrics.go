// Package metrics is the platform's in-process metrics sink.
//
// WHAT IT COLLECTS:
//   - counters: named event counts ("code_execution_success", "rate_limit_exceeded", ...)
//   - timings:  the last 1000 duration samples per operation name
//   - errors:   counts per error kind
//
// Snapshot() turns that into a read-only summary for the admin endpoint and
// the healthcheck command. When a Prometheus registerer is supplied, every
// update is mirrored into Prometheus collectors so the same numbers can be
// scraped from /metrics.
//
// All methods are safe for concurrent use. Recording never changes the
// control flow of the caller.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxTimingSamples bounds each timing series.
const maxTimingSamples = 1000

// TimingStats summarises one timing series, in seconds.
type TimingStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Snapshot is a point-in-time copy of the sink.
type Snapshot struct {
	Counters      map[string]int64       `json:"counters"`
	Timings       map[string]TimingStats `json:"timings"`
	Errors        map[string]int64       `json:"errors"`
	UptimeSeconds float64                `json:"uptimeSeconds"`
	CapturedAt    time.Time              `json:"capturedAt"`
}

// Counter returns a counter value, zero if it was never incremented.
func (s Snapshot) Counter(name string) int64 {
	return s.Counters[name]
}

// CounterNames returns the counter names in sorted order.
func (s Snapshot) CounterNames() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sink aggregates counters, timings and errors.
type Sink struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  map[string][]time.Duration
	errors   map[string]int64
	started  time.Time
	now      func() time.Time

	prom *mirror
}

// mirror holds the Prometheus collectors.
type mirror struct {
	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSink creates a Sink. reg may be nil to skip the Prometheus mirror.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		counters: make(map[string]int64),
		timings:  make(map[string][]time.Duration),
		errors:   make(map[string]int64),
		now:      time.Now,
	}
	s.started = s.now()

	if reg != nil {
		factory := promauto.With(reg)
		s.prom = &mirror{
			events: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "platform",
				Name:      "events_total",
				Help:      "Count of platform events by name.",
			}, []string{"name"}),
			errors: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "platform",
				Name:      "errors_total",
				Help:      "Count of recorded errors by kind.",
			}, []string{"kind"}),
			duration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "platform",
				Name:      "operation_duration_seconds",
				Help:      "Duration of instrumented operations.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"name"}),
		}
	}
	return s
}

// Increment adds one to a counter.
func (s *Sink) Increment(name string) {
	s.Add(name, 1)
}

// Add adds n to a counter.
func (s *Sink) Add(name string, n int64) {
	s.mu.Lock()
	s.counters[name] += n
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.events.WithLabelValues(name).Add(float64(n))
	}
}

// RecordTiming appends a duration sample, dropping the oldest beyond the bound.
func (s *Sink) RecordTiming(name string, d time.Duration) {
	s.mu.Lock()
	series := append(s.timings[name], d)
	if len(series) > maxTimingSamples {
		series = series[len(series)-maxTimingSamples:]
	}
	s.timings[name] = series
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.duration.WithLabelValues(name).Observe(d.Seconds())
	}
}

// RecordError counts one error of the given kind.
func (s *Sink) RecordError(kind string) {
	s.mu.Lock()
	s.errors[kind]++
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.errors.WithLabelValues(kind).Inc()
	}
}

// Track runs fn, records its duration under name and, if fn fails, counts
// an error of kind name. The error from fn is returned unchanged.
func (s *Sink) Track(name string, fn func() error) error {
	start := s.now()
	err := fn()
	s.RecordTiming(name, s.now().Sub(start))
	if err != nil {
		s.RecordError(name)
	}
	return err
}

// Uptime is the time since the sink was created or last reset.
func (s *Sink) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.started)
}

// Snapshot returns a copy of the current state.
func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := Snapshot{
		Counters:      make(map[string]int64, len(s.counters)),
		Timings:       make(map[string]TimingStats, len(s.timings)),
		Errors:        make(map[string]int64, len(s.errors)),
		UptimeSeconds: now.Sub(s.started).Seconds(),
		CapturedAt:    now,
	}
	for k, v := range s.counters {
		snap.Counters[k] = v
	}
	for k, v := range s.errors {
		snap.Errors[k] = v
	}
	for k, series := range s.timings {
		if len(series) == 0 {
			continue
		}
		snap.Timings[k] = summarise(series)
	}
	return snap
}

// Reset clears all series and restarts the uptime clock.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.counters = make(map[string]int64)
	s.timings = make(map[string][]time.Duration)
	s.errors = make(map[string]int64)
	s.started = s.now()
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.events.Reset()
		s.prom.errors.Reset()
		s.prom.duration.Reset()
	}
}

func summarise(series []time.Duration) TimingStats {
	minD, maxD := series[0], series[0]
	var total time.Duration
	for _, d := range series {
		total += d
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	return TimingStats{
		Count: len(series),
		Avg:   (total / time.Duration(len(series))).Seconds(),
		Min:   minD.Seconds(),
		Max:   maxD.Seconds(),
	}
}
