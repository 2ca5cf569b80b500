package otel

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

func toAttribute(field observability.Field) attribute.KeyValue {
	switch v := field.Value.(type) {
	case string:
		return attribute.String(field.Key, v)
	case int:
		return attribute.Int(field.Key, v)
	case int64:
		return attribute.Int64(field.Key, v)
	case float64:
		return attribute.Float64(field.Key, v)
	case bool:
		return attribute.Bool(field.Key, v)
	case []string:
		return attribute.StringSlice(field.Key, v)
	case time.Duration:
		return attribute.Float64(field.Key, float64(v.Microseconds())/1000)
	case error:
		return attribute.String(field.Key, v.Error())
	case fmt.Stringer:
		return attribute.String(field.Key, v.String())
	default:
		return attribute.String(field.Key, fmt.Sprintf("%v", v))
	}
}

// toAttributes returns nil for an empty input so callers can skip the option entirely.
func toAttributes(fields []observability.Field) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, len(fields))
	for i, f := range fields {
		attrs[i] = toAttribute(f)
	}
	return attrs
}
