// Package metrics keeps process-local counters for the /metrics endpoint and
// mirrors every increment to OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter names.
const (
	HTTPRequests         = "http_requests_total"
	HTTPRequestErrors    = "http_requests_errors_total"
	ChatTurns            = "chat_turns_total"
	AgentRounds          = "agent_rounds_total"
	ToolCalls            = "tool_calls_total"
	CheckpointConflicts  = "checkpoint_conflicts_total"
	ImageClassifications = "image_classifications_total"
	UploadsSwept         = "uploads_swept_total"
)

// Registry stores counters for exposition and mirrors them to OTel counters.
// A nil *Registry is valid and records nothing.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	meter    metric.Meter
	otelCtrs map[string]metric.Int64Counter
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
		meter:    otel.GetMeterProvider().Meter("shopbot"),
		otelCtrs: make(map[string]metric.Int64Counter),
	}
}

// fullKey makes deterministic key from name and labels map.
func fullKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc increases a named counter by n with labels.
func (r *Registry) Inc(ctx context.Context, name string, labels map[string]string, n int64) {
	if r == nil {
		return
	}
	r.counter(fullKey(name, labels)).Add(n)

	if inst := r.instrument(name); inst != nil {
		attrs := make([]attribute.KeyValue, 0, len(labels))
		for k, v := range labels {
			attrs = append(attrs, attribute.String(k, v))
		}
		inst.Add(ctx, n, metric.WithAttributes(attrs...))
	}
}

// Value returns the current value of a counter, or 0 when it was never incremented.
func (r *Registry) Value(name string, labels map[string]string) int64 {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.counters[fullKey(name, labels)]; c != nil {
		return c.Load()
	}
	return 0
}

func (r *Registry) counter(key string) *atomic.Int64 {
	r.mu.RLock()
	c := r.counters[key]
	r.mu.RUnlock()
	if c != nil {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c = r.counters[key]; c == nil {
		c = new(atomic.Int64)
		r.counters[key] = c
	}
	return c
}

func (r *Registry) instrument(name string) metric.Int64Counter {
	r.mu.RLock()
	inst := r.otelCtrs[name]
	r.mu.RUnlock()
	if inst != nil {
		return inst
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst = r.otelCtrs[name]; inst == nil {
		ctr, err := r.meter.Int64Counter(name)
		if err != nil {
			return nil
		}
		r.otelCtrs[name] = ctr
		inst = ctr
	}
	return inst
}

// SnapshotLines returns sorted "key value" lines for every counter.
func (r *Registry) SnapshotLines() []string {
	snap := r.SnapshotJSON()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %d", k, snap[k]))
	}
	return lines
}

// SnapshotJSON returns a map of counter->value for JSON rendering.
func (r *Registry) SnapshotJSON() map[string]int64 {
	out := make(map[string]int64)
	if r == nil {
		return out
	}
	r.mu.RLock()
	for k, v := range r.counters {
		out[k] = v.Load()
	}
	r.mu.RUnlock()
	return out
}

// HandlerText writes counters in simple text format.
func (r *Registry) HandlerText(c *gin.Context) {
	c.String(http.StatusOK, strings.Join(append(r.SnapshotLines(), ""), "\n"))
}

// HandlerJSON writes counters as JSON.
func (r *Registry) HandlerJSON(c *gin.Context) {
	c.JSON(http.StatusOK, r.SnapshotJSON())
}
