package consumer

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/errors"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/serializer"
)

// Error codes for consumer pipeline failures.
const (
	CodeHeaderFilterRejected = "TXKAFKA_HEADER_FILTER_REJECTED"
	CodeHandlerFailed        = "TXKAFKA_HANDLER_FAILED"
)

// traceExtractStage restores the producer's span context from
// traceparent/tracestate headers, so handler logs and spans correlate back
// to the original Publish call (spec.md §4.9 step 1).
func traceExtractStage() middleware.Stage {
	return middleware.StageFunc{
		Name: "trace-extract",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			ctx = otel.GetTextMapPropagator().Extract(ctx, envelope.NewCarrier(env.Headers))
			return next(ctx, env)
		},
	}
}

// deserializeStage reads $type off the envelope's headers and hands the
// payload to the matching codec (spec.md §4.9 step 2). The result is
// type-erased until the generic handler/dedup stages type-assert it.
func deserializeStage(registry *serializer.Registry) middleware.Stage {
	return middleware.StageFunc{
		Name: "deserialize",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			message, typeID, err := registry.Deserialize(env.Headers, env.Payload)
			if err != nil {
				return err
			}
			env.Message = message
			env.TypeID = typeID
			return next(ctx, env)
		},
	}
}

// headerFilterStage rejects an envelope unless every configured
// (key, value) pair is present with a case-insensitive matching value
// (spec.md §4.9 step 4). A mismatch halts the chain silently: the handler
// never runs, and the offset is still stored as consumed.
func headerFilterStage(filters map[string]string) middleware.Stage {
	return middleware.StageFunc{
		Name: "header-filter",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			for key, want := range filters {
				got, ok := env.Headers.Get(key)
				if !ok || !strings.EqualFold(string(got), want) {
					return nil
				}
			}
			return next(ctx, env)
		},
	}
}

// handlerStage invokes the registered handler for T, the terminal stage of
// every consumer chain (spec.md §4.9 step 6).
func handlerStage[T any](handler func(T) error) middleware.Stage {
	return middleware.StageFunc{
		Name: "handler",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			msg, ok := env.Message.(T)
			if !ok {
				return errors.New(CodeHandlerFailed, "envelope message is not the registered type", nil)
			}
			if err := handler(msg); err != nil {
				return errors.New(CodeHandlerFailed, "handler returned an error", err)
			}
			return next(ctx, env)
		},
	}
}
