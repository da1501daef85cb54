// Pipeline metrics in the Prometheus text exposition format
//
// Provides a small set of metric types:
// - Counter: monotonically increasing totals
// - Gauge: last-run values that can go up and down
// - Histogram: stage durations in buckets
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "untyped"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

// Key generates a stable key for a label set
func (l Labels) Key() string {
	keys := l.sortedKeys()
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of the labels with key set to value.
func (l Labels) With(key, value string) Labels {
	out := l.clone()
	out[key] = value
	return out
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

func writeHeader(sb *strings.Builder, m Metric) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", m.Name(), m.Help(), m.Name(), m.Type())
}

// series keeps per-label-set values in a deterministic order.
type series[T any] struct {
	mu     sync.Mutex
	labels map[string]Labels
	values map[string]*T
}

func (s *series[T]) get(labels Labels, create bool) (*T, bool) {
	key := labels.Key()
	if v, ok := s.values[key]; ok {
		return v, true
	}
	if !create {
		return nil, false
	}
	if s.values == nil {
		s.values = make(map[string]*T)
		s.labels = make(map[string]Labels)
	}
	v := new(T)
	s.values[key] = v
	s.labels[key] = labels.clone()
	return v, true
}

func (s *series[T]) each(fn func(Labels, *T)) {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(s.labels[k], s.values[k])
	}
}

// Counter is a monotonically increasing metric
type Counter struct {
	name, help string
	s          series[float64]
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) {
	c.Add(labels, 1)
}

// Add increments the counter by delta. Negative deltas are ignored.
func (c *Counter) Add(labels Labels, delta float64) {
	if delta < 0 {
		return
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	v, _ := c.s.get(labels, true)
	*v += delta
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) float64 {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if v, ok := c.s.get(labels, false); ok {
		return *v
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c)
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.each(func(l Labels, v *float64) {
		fmt.Fprintf(sb, "%s%s %s\n", c.name, l, formatFloat(*v))
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name, help string
	s          series[float64]
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	v, _ := g.s.get(labels, true)
	*v = value
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	v, _ := g.s.get(labels, true)
	*v += delta
}

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if v, ok := g.s.get(labels, false); ok {
		return *v
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g)
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	g.s.each(func(l Labels, v *float64) {
		fmt.Fprintf(sb, "%s%s %s\n", g.name, l, formatFloat(*v))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	name, help string
	buckets    []float64
	s          series[histogramValue]
}

type histogramValue struct {
	count   uint64
	sum     float64
	buckets []uint64
}

// NewHistogram creates a new histogram metric with the given upper bounds
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, buckets: sorted}
}

// DefaultBuckets returns default histogram buckets for latency metrics
func DefaultBuckets() []float64 {
	return []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets creates count buckets starting at start with factor multiplier
func ExponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	hv, _ := h.s.get(labels, true)
	if hv.buckets == nil {
		hv.buckets = make([]uint64, len(h.buckets))
	}
	hv.count++
	hv.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			hv.buckets[i]++
			break
		}
	}
}

// Timer returns a function that records the elapsed time when called
func (h *Histogram) Timer(labels Labels) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		elapsed := time.Since(start)
		h.Observe(labels, elapsed.Seconds())
		return elapsed
	}
}

// HistogramSnapshot contains a point-in-time view of one label set.
// Buckets are cumulative.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

// GetSnapshot returns a snapshot of histogram values for the given labels
func (h *Histogram) GetSnapshot(labels Labels) HistogramSnapshot {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.buckets))}
	hv, ok := h.s.get(labels, false)
	if !ok {
		return snap
	}
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += hv.buckets[i]
		snap.Buckets[bound] = cumulative
	}
	snap.Count = hv.count
	snap.Sum = hv.sum
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h)
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.each(func(l Labels, hv *histogramValue) {
		var cumulative uint64
		for i, bound := range h.buckets {
			cumulative += hv.buckets[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.With("le", formatFloat(bound)), cumulative)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, l.With("le", "+Inf"), hv.count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, l, formatFloat(hv.sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, l, hv.count)
	})
}

// Registry holds registered metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metric Metric) {
	if err := r.Register(metric); err != nil {
		panic(err)
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather collects all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
