package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier_SetGet(t *testing.T) {
	msg := &kafka.Message{}
	carrier := NewMessageCarrier(msg)

	carrier.Set("traceparent", "a")
	carrier.Set("baggage", "b")
	carrier.Set("traceparent", "c")

	assert.Equal(t, "c", carrier.Get("traceparent"))
	assert.Equal(t, "b", carrier.Get("baggage"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestMessageCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	propagator := propagation.TraceContext{}
	msg := &kafka.Message{}
	propagator.Inject(ctx, NewMessageCarrier(msg))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), NewMessageCarrier(msg)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), "k", map[string]string{"a": "b"}))
}
