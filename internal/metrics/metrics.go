// Package metrics records repository operations as Prometheus metrics.
//
// A nil *Recorder is valid and records nothing, so callers never branch on
// whether metrics are enabled.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metric names.
const (
	namespace      = "specrepo"
	subsystem      = "repository"
	operationsName = "operations_total"
	durationName   = "operation_duration_seconds"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder counts and times repository operations.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder registers the repository collectors with reg. Collectors that
// are already registered are reused, so several repositories can share one
// registry.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      operationsName,
			Help:      "Total number of repository operations",
		},
		[]string{"entity", "operation", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      durationName,
			Help:      "Repository operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity", "operation"},
	)

	var err error
	if operations, err = register(reg, operations); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Recorder{operations: operations, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("registering metrics: %w", err)
	}
	return c, nil
}

// Observe records one operation that started at start.
func (r *Recorder) Observe(entity, operation string, start time.Time, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.operations.WithLabelValues(entity, operation, outcome).Inc()
	r.duration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
}

// Sample is one counter value from a gathered registry.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// String renders the sample as name{k="v",...} value.
func (s Sample) String() string {
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%q", k, s.Labels[k])
	}
	return fmt.Sprintf("%s{%s} %g", s.Name, strings.Join(pairs, ","), s.Value)
}

// Counters gathers every counter from g, sorted by name and labels.
func Counters(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}
	var out []Sample
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			out = append(out, Sample{
				Name:   mf.GetName(),
				Labels: labels(m.GetLabel()),
				Value:  m.GetCounter().GetValue(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func labels(pairs []*dto.LabelPair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.GetName()] = p.GetValue()
	}
	return out
}
