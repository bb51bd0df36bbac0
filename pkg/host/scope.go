// Package host implements the save-changes hook (spec.md §4.11): the
// binding between the host's own unit-of-work commit and the pending
// Publish calls a business transaction queued up along the way.
package host

import (
	"context"
	"sync"
)

// Command is one queued Publish call, captured as a closure over its
// already-built producer pipeline so this package never needs to know the
// message's concrete Go type.
type Command struct {
	// UsesOutbox is true when the message type this command was queued
	// for has an outbox strategy configured. Outbox commands run inside
	// the host's transaction, before commit, so their outbox-insert
	// stage enlists in it (spec.md §4.4); forget commands run only after
	// the transaction has actually committed (spec.md §4.11 step 2).
	UsesOutbox bool
	Run        func(ctx context.Context) error
}

// Scope is the per-unit-of-work command queue spec.md §9 calls for in
// place of the source's ambient registry: one Scope is created per
// business transaction and threaded through context.Context, never stored
// globally.
type Scope struct {
	mu       sync.Mutex
	commands []Command
}

// NewScope returns an empty command queue.
func NewScope() *Scope {
	return &Scope{}
}

// Enqueue adds cmd to the queue. Safe for concurrent callers within the
// same business transaction.
func (s *Scope) Enqueue(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
}

// Drain empties the queue and splits it into the commands that must run
// before commit (UsesOutbox) and after (everything else).
func (s *Scope) Drain() (preCommit, postCommit []Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.commands {
		if cmd.UsesOutbox {
			preCommit = append(preCommit, cmd)
		} else {
			postCommit = append(postCommit, cmd)
		}
	}
	s.commands = nil
	return preCommit, postCommit
}

type scopeKey struct{}

// WithScope attaches scope to ctx, for Publish (pkg/txkafka) to find via
// ScopeFrom.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the Scope attached to ctx, if any. Code publishing
// outside of any scope (no active business transaction wrapping it) runs
// its pipeline immediately instead of queuing.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok
}
