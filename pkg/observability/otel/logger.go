package otel

import (
	"context"
	"fmt"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

const (
	redactedValue       = "[REDACTED]"
	maxFieldValueLength = 4096
)

var sensitiveKeyParts = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"authorization", "bearer", "credential", "private_key", "cookie", "session",
}

// logger writes every record to a zap console core and, when an OTLP logger
// is attached, emits the same record for export.
type logger struct {
	console     *zap.Logger
	otlp        otellog.Logger
	serviceName string
	fields      []observability.Field
}

// NewConsoleLogger builds a zap-backed Logger that never exports over OTLP.
// It serves relays started with telemetry export disabled.
func NewConsoleLogger(level observability.LogLevel, format observability.LogFormat, serviceName string) (observability.Logger, error) {
	console, err := newConsole(level, format)
	if err != nil {
		return nil, err
	}
	return newLogger(console, nil, serviceName), nil
}

func newLogger(console *zap.Logger, otlp otellog.Logger, serviceName string) *logger {
	return &logger{console: console, otlp: otlp, serviceName: serviceName}
}

func newConsole(level observability.LogLevel, format observability.LogFormat) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.Encoding = "json"
	if format == observability.LogFormatText {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg.Build(zap.WithCaller(false))
}

func zapLevel(level observability.LogLevel) zapcore.Level {
	switch level {
	case observability.LogLevelDebug:
		return zapcore.DebugLevel
	case observability.LogLevelWarn:
		return zapcore.WarnLevel
	case observability.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func severity(level zapcore.Level) otellog.Severity {
	switch level {
	case zapcore.DebugLevel:
		return otellog.SeverityDebug
	case zapcore.WarnLevel:
		return otellog.SeverityWarn
	case zapcore.ErrorLevel:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}

func (l *logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *logger) With(fields ...observability.Field) observability.Logger {
	merged := make([]observability.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &logger{console: l.console, otlp: l.otlp, serviceName: l.serviceName, fields: merged}
}

func (l *logger) log(ctx context.Context, level zapcore.Level, msg string, fields []observability.Field) {
	if !l.console.Core().Enabled(level) {
		return
	}

	all := make([]observability.Field, 0, len(l.fields)+len(fields)+3)
	all = append(all, l.fields...)
	all = append(all, fields...)
	all = sanitizeFields(all)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		all = append(all,
			observability.String("trace_id", sc.TraceID().String()),
			observability.String("span_id", sc.SpanID().String()),
		)
	}
	all = append(all, observability.String("service", l.serviceName))

	zfields := make([]zap.Field, 0, len(all))
	for _, f := range all {
		zfields = append(zfields, toZapField(f))
	}
	if ce := l.console.Check(level, msg); ce != nil {
		ce.Write(zfields...)
	}

	if l.otlp == nil {
		return
	}

	record := otellog.Record{}
	record.SetTimestamp(time.Now())
	record.SetBody(otellog.StringValue(msg))
	record.SetSeverity(severity(level))
	record.SetSeverityText(level.CapitalString())
	for _, f := range all {
		record.AddAttributes(toLogKeyValue(f))
	}
	l.otlp.Emit(ctx, record)
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// sanitizeFields masks secrets and truncates oversized strings. The input is not modified.
func sanitizeFields(fields []observability.Field) []observability.Field {
	out := make([]observability.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			if isSensitiveKey(f.Key) {
				f.Value = redactedValue
			} else if len(v) > maxFieldValueLength {
				f.Value = v[:maxFieldValueLength] + "...[truncated]"
			}
		default:
			if isSensitiveKey(f.Key) {
				f.Value = redactedValue
			}
		}
		out[i] = f
	}
	return out
}

func toZapField(f observability.Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}

func toLogKeyValue(f observability.Field) otellog.KeyValue {
	switch v := f.Value.(type) {
	case string:
		return otellog.String(f.Key, v)
	case int:
		return otellog.Int(f.Key, v)
	case int64:
		return otellog.Int64(f.Key, v)
	case float64:
		return otellog.Float64(f.Key, v)
	case bool:
		return otellog.Bool(f.Key, v)
	case error:
		return otellog.String(f.Key, v.Error())
	default:
		return otellog.String(f.Key, fmt.Sprint(v))
	}
}
