package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry builds logging, tracing and metrics from cfg.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	return &Telemetry{Logger: logger, Tracer: tracer, Metrics: metrics, Config: cfg}, nil
}

// WithContext stores t and its logger in ctx. Operations started from the
// returned context are traced; see StartOperation.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(context.WithValue(ctx, telemetryContextKey{}, t))
}

// FromTelemetryContext returns the telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Operation is a traced unit of work spanning many evaluations, such as a
// sweep. Ctx carries the span, so evaluations run under it become children.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation opens a span named name when ctx carries telemetry. Without
// telemetry the operation only times itself and logs through the context
// logger.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &Operation{Ctx: ctx, Logger: FromContext(ctx), Timer: NewTimer()}
	}

	spanCtx, span := tel.Tracer.start(ctx, name, attrs...)
	logger := tel.Logger.WithField("operation", name)
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}

	return &Operation{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End closes the span with err as its status.
func (op *Operation) End(err error) {
	if op.Span != nil {
		endSpan(op.Span, err)
	}
	if err != nil {
		op.Logger.WithError(err).Debugf("Operation failed after %s", op.Timer.Duration())
	}
}
