// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tracer wraps the spans quarry opens around executed statements.
// Spans are backed by OpenTelemetry; NoopTracer is used when tracing is off.
package tracer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer obtained from the global provider.
const InstrumentationName = "github.com/coregx/quarry"

// SpanExecute is the name of the span opened around every execution.
const SpanExecute = "quarry.query.execute"

// Tracer starts spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span is the subset of a trace span quarry writes to.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer returns spans that record nothing.
type NoopTracer struct{}

// StartSpan returns ctx unchanged and a NoopSpan.
func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

// NoopSpan ignores every call.
type NoopSpan struct{}

func (NoopSpan) SetAttributes(...attribute.KeyValue) {}
func (NoopSpan) RecordError(error)                   {}
func (NoopSpan) SetStatus(codes.Code, string)        {}
func (NoopSpan) End()                                {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer adapts t.
func NewOtelTracer(t trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: t}
}

// NewGlobalTracer adapts the tracer of the globally registered provider.
// Spans follow whatever provider is installed with otel.SetTracerProvider.
func NewGlobalTracer() *OtelTracer {
	return NewOtelTracer(otel.Tracer(InstrumentationName))
}

// StartSpan starts a client span named name.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetAttributes(attrs ...attribute.KeyValue) { s.span.SetAttributes(attrs...) }
func (s otelSpan) RecordError(err error)                     { s.span.RecordError(err) }
func (s otelSpan) SetStatus(code codes.Code, desc string)    { s.span.SetStatus(code, desc) }
func (s otelSpan) End()                                      { s.span.End() }

// QueryMetadata describes one executed statement.
type QueryMetadata struct {
	QueryID      string
	SQL          string
	ParamCount   int
	Duration     time.Duration
	RowsAffected int64
	Error        error
	System       string // dialect name
	Operation    string // SELECT, INSERT, UPDATE, DELETE
	Table        string // main table, if any
}

// AddQueryAttributes sets database semantic convention attributes on span
// and marks it failed when meta carries an error. Parameter values are
// never recorded, only their count.
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", meta.System),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", meta.Operation),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
		attribute.Int("quarry.param_count", meta.ParamCount),
	}
	if meta.QueryID != "" {
		attrs = append(attrs, attribute.String("quarry.query_id", meta.QueryID))
	}
	if meta.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", meta.Table))
	}
	if meta.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", meta.RowsAffected))
	}
	span.SetAttributes(attrs...)

	if meta.Error != nil {
		span.RecordError(meta.Error)
		span.SetStatus(codes.Error, meta.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
