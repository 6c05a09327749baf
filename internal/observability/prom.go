package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// family is the shared name/help/labels part of every collector.
type family struct {
	name       string
	help       string
	kind       string
	labelNames []string
}

func (f family) writeHeader(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", f.name, f.help); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "# TYPE %s %s\n", f.name, f.kind)
	return err
}

// valueVec backs counters and gauges, labelled or not.
type valueVec struct {
	family
	mu     sync.RWMutex
	values map[string]float64
}

func newValueVec(kind, name, help string, labels []string) *valueVec {
	return &valueVec{
		family: family{name: name, help: help, kind: kind, labelNames: labels},
		values: map[string]float64{},
	}
}

func (v *valueVec) add(d float64, set bool, values ...string) {
	if v == nil {
		return
	}
	lbl := labelString(v.labelNames, values)
	v.mu.Lock()
	if set {
		v.values[lbl] = d
	} else {
		v.values[lbl] += d
	}
	v.mu.Unlock()
}

func (v *valueVec) get(values ...string) float64 {
	if v == nil {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[labelString(v.labelNames, values)]
}

func (v *valueVec) WritePrometheus(w io.Writer) error {
	if v == nil {
		return nil
	}
	if err := v.writeHeader(w); err != nil {
		return err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, k := range sortedKeys(v.values) {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", v.name, k, v.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ *valueVec }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{newValueVec("counter", name, help, labels)}
}

func (c *CounterVec) Inc(values ...string)            { c.Add(1, values...) }
func (c *CounterVec) Add(d float64, values ...string) { c.valueVec.add(d, false, values...) }
func (c *CounterVec) Value(values ...string) float64  { return c.valueVec.get(values...) }

type Counter struct{ *valueVec }

func NewCounter(name, help string) *Counter {
	return &Counter{newValueVec("counter", name, help, nil)}
}

func (c *Counter) Inc()           { c.Add(1) }
func (c *Counter) Add(d float64)  { c.valueVec.add(d, false) }
func (c *Counter) Value() float64 { return c.valueVec.get() }

type Gauge struct{ *valueVec }

func NewGauge(name, help string) *Gauge {
	return &Gauge{newValueVec("gauge", name, help, nil)}
}

func (g *Gauge) Set(v float64)  { g.valueVec.add(v, true) }
func (g *Gauge) Inc()           { g.valueVec.add(1, false) }
func (g *Gauge) Dec()           { g.valueVec.add(-1, false) }
func (g *Gauge) Value() float64 { return g.valueVec.get() }

type HistogramVec struct {
	family
	buckets []float64
	mu      sync.RWMutex
	values  map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{
		family:  family{name: name, help: help, kind: "histogram", labelNames: labels},
		buckets: buckets,
		values:  map[string]*histogram{},
	}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := h.writeHeader(w); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.total); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n%s_count%s %d\n", h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts[i] = name + "=\"" + escapeLabel(val) + "\""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return strings.ReplaceAll(v, "\n", "\\n")
}

func withLe(labels string, le string) string {
	if labels == "" {
		return "{le=\"" + escapeLabel(le) + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + escapeLabel(le) + "\"}"
}
