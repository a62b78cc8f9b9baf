package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestProduceMessageInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	w := &captureWriter{}
	require.NoError(t, ProduceMessage(ctx, w, []byte("k"), []byte(`{"a":1}`)))
	require.Len(t, w.msgs, 1)

	carrier := KafkaHeaderCarrier(w.msgs[0].Headers)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
	assert.Equal(t, []byte("k"), w.msgs[0].Key)
}

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	var c KafkaHeaderCarrier
	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}
