package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tagsToKV converts an alternating key/value string slice (the Metrics
// interface's "tags" convention) into OTEL attributes. An odd-length tags
// slice drops its trailing unpaired key.
func tagsToKV(tags []string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		kvs = append(kvs, attribute.String(tags[i], tags[i+1]))
	}
	return kvs
}

// SlogLogger implements Logger on top of the standard library's structured
// logger. The teacher wraps goa.design/clue/log instead; this repo has no
// Goa-generated service context to attach clue's request-scoped logger to,
// so it logs through slog directly (see DESIGN.md).
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger, or slog.Default() if nil.
func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{logger: logger}
}

func (l SlogLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.logger.DebugContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.logger.InfoContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.logger.WarnContext(ctx, msg, keyvals...)
}
func (l SlogLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.logger.ErrorContext(ctx, msg, keyvals...)
}

// OtelMetrics implements Metrics on top of an OpenTelemetry Meter, lazily
// creating one instrument per metric name the first time it is used.
type OtelMetrics struct {
	meter   otelmetric.Meter
	mu      chan struct{} // binary semaphore guarding the maps below
	floats  map[string]otelmetric.Float64Counter
	timers  map[string]otelmetric.Float64Histogram
	gauges  map[string]otelmetric.Float64Gauge
}

// NewOtelMetrics constructs a Metrics backed by meter.
func NewOtelMetrics(meter otelmetric.Meter) *OtelMetrics {
	m := &OtelMetrics{
		meter:  meter,
		mu:     make(chan struct{}, 1),
		floats: make(map[string]otelmetric.Float64Counter),
		timers: make(map[string]otelmetric.Float64Histogram),
		gauges: make(map[string]otelmetric.Float64Gauge),
	}
	m.mu <- struct{}{}
	return m
}

func (m *OtelMetrics) lock()   { <-m.mu }
func (m *OtelMetrics) unlock() { m.mu <- struct{}{} }

func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	m.lock()
	counter, ok := m.floats[name]
	if !ok {
		c, err := m.meter.Float64Counter(name)
		if err != nil {
			m.unlock()
			return
		}
		m.floats[name] = c
		counter = c
	}
	m.unlock()
	counter.Add(context.Background(), value, toAddOptions(tags)...)
}

func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	m.lock()
	hist, ok := m.timers[name]
	if !ok {
		h, err := m.meter.Float64Histogram(name, otelmetric.WithUnit("ms"))
		if err != nil {
			m.unlock()
			return
		}
		m.timers[name] = h
		hist = h
	}
	m.unlock()
	hist.Record(context.Background(), float64(duration.Milliseconds()), toRecordOptions(tags)...)
}

func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	m.lock()
	gauge, ok := m.gauges[name]
	if !ok {
		g, err := m.meter.Float64Gauge(name)
		if err != nil {
			m.unlock()
			return
		}
		m.gauges[name] = g
		gauge = g
	}
	m.unlock()
	gauge.Record(context.Background(), value, toGaugeRecordOptions(tags)...)
}

func toAddOptions(tags []string) []otelmetric.AddOption {
	if len(tags) == 0 {
		return nil
	}
	return []otelmetric.AddOption{otelmetric.WithAttributes(tagsToKV(tags)...)}
}

func toRecordOptions(tags []string) []otelmetric.RecordOption {
	if len(tags) == 0 {
		return nil
	}
	return []otelmetric.RecordOption{otelmetric.WithAttributes(tagsToKV(tags)...)}
}

func toGaugeRecordOptions(tags []string) []otelmetric.RecordOption {
	return toRecordOptions(tags)
}

// OtelTracer implements Tracer on top of an OpenTelemetry Tracer.
type OtelTracer struct {
	tracer oteltrace.Tracer
}

// NewOtelTracer constructs a Tracer backed by tracer.
func NewOtelTracer(tracer oteltrace.Tracer) OtelTracer {
	return OtelTracer{tracer: tracer}
}

func (t OtelTracer) Start(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, otelSpan{span: span}
}

func (t OtelTracer) Span(ctx context.Context) Span {
	return otelSpan{span: oteltrace.SpanFromContext(ctx)}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End(opts ...oteltrace.SpanEndOption) { s.span.End(opts...) }
func (s otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name)
}
func (s otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}
func (s otelSpan) RecordError(err error, opts ...oteltrace.EventOption) {
	s.span.RecordError(err, opts...)
}
