package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(Config{}))
	_, span := Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	End(span, nil)
}

func TestStartEnd_RecordsAttributesAndErrors(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := newProvider(tracesdk.WithSyncer(exp), Config{Environment: "test"})
	require.NoError(t, err)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Start(context.Background(), "service.CreateOrder", VenueID("v1"), OrderID("o1"))
	End(span, errors.New("insufficient stock"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "service.CreateOrder", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "v1", attrs["ledger.venue_id"])
	assert.Equal(t, "o1", attrs["ledger.order_id"])

	require.NoError(t, Shutdown(context.Background()))
}
