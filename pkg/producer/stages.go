package producer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/errors"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/logger"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/serializer"
)

// Error codes for producer pipeline failures.
const (
	CodePublishFailed = "TXKAFKA_PUBLISH_FAILED"
)

// serializeStage is the chain's first stage: serialize the message and
// stamp $type/$runtimeType, per spec.md §4.1 step 1.
func serializeStage(registry *serializer.Registry) middleware.Stage {
	return middleware.StageFunc{
		Name: "serialize",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			payload, typeID, err := registry.Serialize(env.Headers, env.Message)
			if err != nil {
				return err
			}
			env.Payload = payload
			env.TypeID = typeID
			return next(ctx, env)
		},
	}
}

// traceInjectStage writes traceparent/tracestate from ctx's active span
// into env.Headers, per spec.md §4.1 step 3.
func traceInjectStage() middleware.Stage {
	return middleware.StageFunc{
		Name: "trace-inject",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			otel.GetTextMapPropagator().Inject(ctx, envelope.NewCarrier(env.Headers))
			return next(ctx, env)
		},
	}
}

// forgetStage implements the at-most-once forget strategies (spec.md
// §4.4). It only runs a meaningful branch when outbox is disabled for this
// type; when outbox is enabled the pipeline never installs this stage at
// all (outbox's own stage occupies this slot instead).
func forgetStage(strategy Strategy, timeout time.Duration) middleware.Stage {
	return middleware.StageFunc{
		Name: "forget",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			switch strategy {
			case StrategyFireAndForget:
				go func() {
					if err := next(context.WithoutCancel(ctx), env); err != nil {
						logger.L().ErrorContext(ctx, "fire-and-forget publish failed", "type", env.TypeID, "error", err)
					}
				}()
				return nil
			case StrategyAwait:
				done := make(chan error, 1)
				go func() { done <- next(ctx, env) }()
				select {
				case err := <-done:
					if err != nil {
						// Forget strategies swallow the error per spec.md
						// §4.4; only log it.
						logger.L().WarnContext(ctx, "await-forget publish failed", "type", env.TypeID, "error", err)
					}
					return nil
				case <-time.After(timeout):
					logger.L().WarnContext(ctx, "await-forget publish timed out", "type", env.TypeID, "timeout", timeout)
					return nil
				}
			default:
				return next(ctx, env)
			}
		},
	}
}

// Strategy mirrors config.ForgetStrategy without importing pkg/config from
// pkg/producer's stage-construction internals (kept here to avoid a
// dependency from the low-level stage builders onto the config package;
// NewForgetStage in forget.go translates config.ForgetStrategy into this
// type).
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyAwait
	StrategyFireAndForget
)

// kafkaProduceStage is the terminal stage: hands the envelope to the
// shared producer client and waits for its delivery callback.
func kafkaProduceStage(client kafkabroker.ProducerClient, topic string) middleware.Stage {
	return middleware.StageFunc{
		Name: "kafka-produce",
		Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			headers := make(map[string][]byte, env.Headers.Len())
			for _, k := range env.Headers.Keys() {
				v, _ := env.Headers.Get(k)
				headers[k] = v
			}

			var wg sync.WaitGroup
			var reportErr error
			wg.Add(1)
			err := client.Produce(topic, []byte(env.Key), env.HasKey, env.Payload, headers, func(report kafkabroker.DeliveryReport) {
				defer wg.Done()
				reportErr = report.Err
			})
			if err != nil {
				return errors.New(CodePublishFailed, "failed to enqueue produce", err)
			}
			wg.Wait()
			if reportErr != nil {
				return errors.New(CodePublishFailed, "broker rejected produce", reportErr)
			}
			return next(ctx, env)
		},
	}
}
