package noop_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracekit-dev/trace-relay/pkg/observability"
	"github.com/tracekit-dev/trace-relay/pkg/observability/fake"
	"github.com/tracekit-dev/trace-relay/pkg/observability/noop"
)

func TestProviderIsSafeToUse(t *testing.T) {
	provider := noop.NewProvider()
	ctx := context.Background()

	newCtx, span := provider.Tracer().Start(ctx, "relay.call", observability.WithSpanKind(observability.SpanKindClient))
	span.SetAttributes(observability.String("peer.service", "go-test-app"))
	span.RecordError(errors.New("ignored"))
	span.SetStatus(observability.StatusCodeError, "ignored")
	span.End()

	assert.Equal(t, ctx, newCtx)
	assert.Empty(t, span.Context().TraceID())
	assert.False(t, span.Context().IsSampled())

	provider.Metrics().Counter("c", "", "").Increment(ctx)
	provider.Metrics().Histogram("h", "", "ms").Record(ctx, 1)
	provider.Logger().With(observability.String("k", "v")).Info(ctx, "dropped")
}

func TestProviderKeepsInjectedLogger(t *testing.T) {
	logger := fake.NewLogger()
	provider := noop.NewProvider(noop.WithLogger(logger))

	provider.Logger().Info(context.Background(), "relay started")

	assert.Len(t, logger.GetEntries(), 1)
}
