package cron_worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
)

// cronLogger adapta o observability logger para o cron.Logger.
type cronLogger struct {
	serviceName string
	o11y        observability.Observability
}

func newCronLogger(serviceName string, o11y observability.Observability) cron.Logger {
	return &cronLogger{
		serviceName: serviceName,
		o11y:        o11y,
	}
}

// Info é rebaixado para debug: o robfig/cron loga a cada wake-up do scheduler.
func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.o11y.Logger().Debug(context.Background(), msg, l.fields(keysAndValues...)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := append(l.fields(keysAndValues...), observability.Error(err))
	l.o11y.Logger().Error(context.Background(), msg, fields...)
}

// fields converte pares chave-valor para observability.Field.
func (l *cronLogger) fields(keysAndValues ...any) []observability.Field {
	fields := []observability.Field{
		observability.String("worker", l.serviceName),
	}

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, convertValue(key, keysAndValues[i+1]))
	}

	return fields
}

func convertValue(key string, value any) observability.Field {
	switch v := value.(type) {
	case string:
		return observability.String(key, v)
	case int:
		return observability.Int(key, v)
	case int64:
		return observability.Int64(key, v)
	case bool:
		return observability.Bool(key, v)
	case error:
		return observability.String(key, v.Error())
	default:
		return observability.String(key, fmt.Sprintf("%v", v))
	}
}
