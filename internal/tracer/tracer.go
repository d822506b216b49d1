// Package tracer provides the tracing abstraction for query and command
// execution, with an OpenTelemetry adapter and a no-op default.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names emitted by the persistence layer.
const (
	SpanQuery    = "babble.query"
	SpanCommand  = "babble.command"
	SpanSequence = "babble.sequence"
)

// Tracer starts spans around backend round trips.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the subset of trace.Span the persistence layer records into.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer starts spans that record nothing.
type NoopTracer struct{}

func (*NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttributes(...attribute.KeyValue) {}
func (noopSpan) RecordError(error)                   {}
func (noopSpan) SetStatus(codes.Code, string)        {}
func (noopSpan) End()                                {}

// OtelTracer starts client spans on an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps a non-nil OpenTelemetry tracer.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: t}
}

func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, otelSpan{span}
}

// otelSpan drops the variadic options of trace.Span.
type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }
func (s otelSpan) RecordError(err error)                     { s.span.RecordError(err) }
func (s otelSpan) SetStatus(code codes.Code, desc string)    { s.span.SetStatus(code, desc) }
func (s otelSpan) End()                                      { s.span.End() }

// Metadata describes one executed query or command.
type Metadata struct {
	// Statement is the rendered SQL, or a short description for document
	// backends (e.g. "find ignores").
	Statement    string
	Duration     time.Duration
	RowsAffected int64
	Rows         int
	Error        error
	// System is the backend name: sqlite, mysql, postgres, mongodb.
	System string
	// Operation is SELECT, INSERT, UPDATE, DELETE or UPSERT.
	Operation string
	Table     string
}

// attributes follows the OpenTelemetry database semantic conventions.
func (m *Metadata) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", m.System),
		attribute.String("db.statement", m.Statement),
		attribute.String("db.operation", m.Operation),
		attribute.Float64("db.duration_ms", float64(m.Duration.Microseconds())/1000.0),
	}
	if m.Table != "" {
		key := "db.sql.table"
		if m.System == "mongodb" {
			key = "db.mongodb.collection"
		}
		attrs = append(attrs, attribute.String(key, m.Table))
	}
	if m.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", m.RowsAffected))
	}
	if m.Rows > 0 {
		attrs = append(attrs, attribute.Int("db.rows_returned", m.Rows))
	}
	return attrs
}

// Finish records meta on span, sets its status and ends it.
func Finish(span Span, meta *Metadata) {
	span.SetAttributes(meta.attributes()...)
	if meta.Error != nil {
		span.RecordError(meta.Error)
		span.SetStatus(codes.Error, meta.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
