// Package middleware assembles the producer-side and consumer-side
// chain-of-responsibility pipelines from built-in stages plus
// user-registered stages.
//
// The source's "mutable Next field per stage" design is replaced here with
// a flat ordered slice and a recursive dispatcher closure (see §9 of
// SPEC_FULL.md): no stage ever holds a pointer to another, so chains are
// safe to share across goroutines once built.
package middleware

import (
	"context"

	"github.com/txkafka/txkafka/pkg/envelope"
)

// Next continues the chain. A stage that returns without calling Next
// halts the remainder silently: the chain's overall result is a nil error.
type Next func(ctx context.Context, env *envelope.Envelope) error

// Stage is one link in a chain. identity, when non-empty, identifies a
// user-registered stage for HasMiddleware lookups and duplicate-detection
// at build time.
type Stage interface {
	Identity() string
	Invoke(ctx context.Context, env *envelope.Envelope, next Next) error
}

// StageFunc adapts a plain function to Stage for anonymous built-in stages.
type StageFunc struct {
	Name string
	Fn   func(ctx context.Context, env *envelope.Envelope, next Next) error
}

func (f StageFunc) Identity() string { return f.Name }
func (f StageFunc) Invoke(ctx context.Context, env *envelope.Envelope, next Next) error {
	return f.Fn(ctx, env, next)
}

// Chain is an assembled, ordered list of stages. Build it once at startup;
// Invoke it once per envelope.
type Chain struct {
	stages []Stage
}

// New assembles a chain from stages in the given order. Duplicate
// identities (two stages with the same non-empty Identity()) are a
// configuration error, caught by Validate.
func New(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Validate rejects a chain with two stages sharing the same non-empty
// identity (spec §7: "two middleware of the same identity" is a
// configuration error reported at startup).
func (c *Chain) Validate() error {
	seen := make(map[string]bool)
	for _, s := range c.stages {
		id := s.Identity()
		if id == "" {
			continue
		}
		if seen[id] {
			return errDuplicateStage(id)
		}
		seen[id] = true
	}
	return nil
}

// HasMiddleware reports whether a stage with the given identity is present
// in the chain, and at what index — used only by tests asserting ordering
// guarantees (A before B).
func (c *Chain) HasMiddleware(identity string) (index int, ok bool) {
	for i, s := range c.stages {
		if s.Identity() == identity {
			return i, true
		}
	}
	return -1, false
}

// Invoke runs the chain over env. Stages run in slice order; each decides
// whether to call next. A stage that doesn't call next ends the traversal
// with a nil error (intentional short-circuit, not a failure).
func (c *Chain) Invoke(ctx context.Context, env *envelope.Envelope) error {
	return c.invokeFrom(ctx, env, 0)
}

func (c *Chain) invokeFrom(ctx context.Context, env *envelope.Envelope, i int) error {
	if i >= len(c.stages) {
		return nil
	}
	return c.stages[i].Invoke(ctx, env, func(ctx context.Context, env *envelope.Envelope) error {
		return c.invokeFrom(ctx, env, i+1)
	})
}

// Len reports the number of stages in the chain.
func (c *Chain) Len() int {
	return len(c.stages)
}
