package producer

import (
	"time"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/middleware"
)

// NewForgetStage builds the forget-persistence stage for a type with no
// outbox configured (spec.md §4.4). Types with cfg.Forget == ForgetDisabled
// still get a pass-through stage here: TypeConfig.applyDefaults already
// forces ForgetAwait when neither outbox nor forget was set explicitly, so
// this is reached only when the caller bypassed that default.
func NewForgetStage(strategy config.ForgetStrategy, timeout time.Duration) middleware.Stage {
	switch strategy {
	case config.ForgetAwait:
		return forgetStage(StrategyAwait, timeout)
	case config.ForgetFireAndForget:
		return forgetStage(StrategyFireAndForget, 0)
	default:
		return forgetStage(StrategyNone, 0)
	}
}
