package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/camia/aviation/pkg/engine"
)

// Observer reports engine evaluations as spans, metrics and debug logs.
// It implements engine.Observer.
type Observer struct {
	tel    *Telemetry
	logger *Logger
}

// NewObserver returns an observer recording into tel.
func NewObserver(tel *Telemetry) *Observer {
	return &Observer{
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("engine"),
	}
}

// Observer returns an engine observer backed by t.
func (t *Telemetry) Observer() *Observer {
	return NewObserver(t)
}

// StartEvaluation implements engine.Observer.
func (o *Observer) StartEvaluation(ctx context.Context, output string) (context.Context, func(error)) {
	ctx, span := o.tel.Tracer.StartEvaluationSpan(ctx, output)
	timer := NewTimer()
	o.tel.Metrics.RecordEvaluationStarted()

	return ctx, func(err error) {
		duration := timer.Duration()
		status := statusOf(err)
		o.tel.Metrics.RecordEvaluationCompleted(output, status, duration)
		if err != nil {
			kind := string(engine.KindOf(err))
			o.tel.Metrics.RecordError(kind)
			span.SetAttributes(AttrErrorKind.String(kind))
		}
		endSpan(span, err)

		o.logger.WithOutput(output).WithField("status", status).
			Debugf("Evaluation finished in %s", duration)
	}
}

// StartTransform implements engine.Observer.
func (o *Observer) StartTransform(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := o.tel.Tracer.StartTransformSpan(ctx, name)
	timer := NewTimer()

	return ctx, func(err error) {
		o.tel.Metrics.RecordTransformInvocation(name, statusOf(err), timer.Duration())
		endSpan(span, err)
	}
}

// InputHit implements engine.Observer.
func (o *Observer) InputHit(ctx context.Context, name string) {
	o.tel.Metrics.RecordInputHit(name)
	trace.SpanFromContext(ctx).AddEvent("input_hit", trace.WithAttributes(AttrInput.String(name)))
}

func statusOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}

var _ engine.Observer = (*Observer)(nil)
