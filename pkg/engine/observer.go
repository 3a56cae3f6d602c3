package engine

import "context"

// Observer receives resolution events from a SystemsModel. Implementations
// must be safe for concurrent use when the model is shared between goroutines.
type Observer interface {
	// StartEvaluation is called once per top-level evaluation. The returned
	// function is called with the evaluation's error (nil on success).
	StartEvaluation(ctx context.Context, output string) (context.Context, func(error))

	// StartTransform is called before a transform is invoked. The returned
	// function is called with the invocation's error (nil on success).
	StartTransform(ctx context.Context, name string) (context.Context, func(error))

	// InputHit is called whenever a name is served from the inputs map
	// instead of being computed.
	InputHit(ctx context.Context, name string)
}

// NopObserver ignores all events.
type NopObserver struct{}

// StartEvaluation implements Observer.
func (NopObserver) StartEvaluation(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// StartTransform implements Observer.
func (NopObserver) StartTransform(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// InputHit implements Observer.
func (NopObserver) InputHit(context.Context, string) {}
