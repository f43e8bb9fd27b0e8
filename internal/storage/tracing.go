package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/annel0/chunkstream/internal/storage"

// startSpan открывает span пакетной операции. Без настроенного TracerProvider
// используется глобальный no-op.
func startSpan(ctx context.Context, name, backend string, chunks int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(
			attribute.String("storage.backend", backend),
			attribute.Int("storage.chunks", chunks),
		),
	)
}

// endSpan закрывает span, отмечая ошибку
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
