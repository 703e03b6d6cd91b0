package tracing

import (
	"context"
	"testing"
	"time"

	"modsecmon/testutils"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	assert := assert.New(t)

	shutdown, err := Init(context.Background(), testutils.NewTestLogger(t), "")

	assert.Nil(err)
	assert.Nil(shutdown(context.Background()))
}

func TestInitEnabled(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	// Act
	shutdown, err := Init(context.Background(), testutils.NewTestLogger(t), "127.0.0.1:4317")

	// Assert
	assert.Nil(err)
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(isSDK)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestStartSpan(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	// Act
	_, span := StartSpan(context.Background(), "verdict.Decide", ClientIP("203.0.113.9"))
	span.End()

	// Assert
	ended := rec.Ended()
	assert.Len(ended, 1)
	assert.Equal("verdict.Decide", ended[0].Name())
	assert.Equal("203.0.113.9", ended[0].Attributes()[0].Value.AsString())
}
