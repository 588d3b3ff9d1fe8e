package fn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "threadsage/fn"

// Stage is a function that transforms In to Out within a context.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then composes two stages, short-circuiting on error.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		r := first(ctx, a)
		if r.IsErr() {
			_, err := r.Unwrap()
			return Err[C](err)
		}
		v, _ := r.Unwrap()
		return second(ctx, v)
	}
}

// MapStage wraps a pure function as a Stage.
func MapStage[In, Out any](f func(In) Out) Stage[In, Out] {
	return func(_ context.Context, in In) Result[Out] {
		return Ok(f(in))
	}
}

// TracedStage wraps a stage with OTel span creation. Errors are recorded
// on the span and propagated unchanged.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		result := stage(ctx, in)
		if result.IsErr() {
			_, err := result.Unwrap()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result
	}
}
