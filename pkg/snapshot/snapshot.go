// Package snapshot records code-monitoring snapshots: named sets of local
// variables attached to the active span. Which labels are recorded is driven
// by the breakpoints fetched by the Poller.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

const (
	DefaultMaxDepth        = 3
	DefaultMaxStringLength = 1000

	maxDepthMarker = "[max depth reached]"
	truncSuffix    = "...[truncated]"
)

// Config controls what Capture records.
type Config struct {
	Enabled         bool
	MaxDepth        int
	MaxStringLength int
}

// Recorder is the shipped snapshot collaborator. A disabled Recorder is a no-op.
type Recorder struct {
	cfg         Config
	o11y        observability.Observability
	breakpoints *Breakpoints
	captures    observability.Counter
}

// NewRecorder builds a Recorder. breakpoints may be nil, in which case every
// label is recorded.
func NewRecorder(o11y observability.Observability, cfg Config, breakpoints *Breakpoints) *Recorder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxStringLength <= 0 {
		cfg.MaxStringLength = DefaultMaxStringLength
	}
	return &Recorder{
		cfg:         cfg,
		o11y:        o11y,
		breakpoints: breakpoints,
		captures:    o11y.Metrics().Counter("snapshot.captures", "Code monitoring snapshots recorded", "1"),
	}
}

// Enabled reports whether Capture records anything at all.
func (r *Recorder) Enabled() bool {
	return r != nil && r.cfg.Enabled
}

// Capture records vars under label as an event on the span in ctx and as a
// debug log record. Values are sanitized first: strings are truncated and
// nesting deeper than MaxDepth is replaced by a marker.
func (r *Recorder) Capture(ctx context.Context, label string, vars map[string]any) {
	if !r.Enabled() {
		return
	}
	if r.breakpoints != nil && !r.breakpoints.Active(label) {
		return
	}

	clean := r.Sanitize(vars)

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]observability.Field, 0, len(keys)+1)
	fields = append(fields, observability.String("snapshot.label", label))
	for _, k := range keys {
		fields = append(fields, observability.String("snapshot.var."+k, render(clean[k])))
	}

	r.o11y.Tracer().SpanFromContext(ctx).AddEvent("snapshot", fields...)
	r.o11y.Logger().Debug(ctx, "snapshot captured", fields...)
	r.captures.Increment(ctx, observability.String("label", label))
}

// Sanitize returns a copy of vars bounded by the configured depth and string length.
func (r *Recorder) Sanitize(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = r.sanitize(v, 1)
	}
	return out
}

func (r *Recorder) sanitize(v any, depth int) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return truncate(val, r.cfg.MaxStringLength)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case error:
		return truncate(val.Error(), r.cfg.MaxStringLength)
	case fmt.Stringer:
		return truncate(val.String(), r.cfg.MaxStringLength)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		// pointer chains are bounded by MaxDepth hops so self references end
		for hops := 0; rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface; hops++ {
			if rv.IsNil() {
				return nil
			}
			if hops >= r.cfg.MaxDepth {
				return maxDepthMarker
			}
			rv = rv.Elem()
		}
		return r.sanitize(rv.Interface(), depth)
	case reflect.Map:
		if depth >= r.cfg.MaxDepth {
			return maxDepthMarker
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = r.sanitize(iter.Value().Interface(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return truncate(string(rv.Bytes()), r.cfg.MaxStringLength)
		}
		if depth >= r.cfg.MaxDepth {
			return maxDepthMarker
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = r.sanitize(rv.Index(i).Interface(), depth+1)
		}
		return out
	case reflect.Struct:
		if depth >= r.cfg.MaxDepth {
			return maxDepthMarker
		}
		// structs go through their JSON form so tags and omitempty apply
		raw, err := json.Marshal(v)
		if err != nil {
			return truncate(fmt.Sprintf("%+v", v), r.cfg.MaxStringLength)
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return truncate(string(raw), r.cfg.MaxStringLength)
		}
		return r.sanitize(generic, depth)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%s>", rv.Kind())
	}
	return truncate(fmt.Sprint(v), r.cfg.MaxStringLength)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncSuffix
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
