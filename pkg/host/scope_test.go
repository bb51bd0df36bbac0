package host_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/host"
)

type ScopeSuite struct {
	suite.Suite
}

func (s *ScopeSuite) TestDrainSplitsByOutboxFlag() {
	scope := host.NewScope()
	var ran []string

	scope.Enqueue(host.Command{UsesOutbox: true, Run: func(ctx context.Context) error {
		ran = append(ran, "outbox")
		return nil
	}})
	scope.Enqueue(host.Command{UsesOutbox: false, Run: func(ctx context.Context) error {
		ran = append(ran, "forget")
		return nil
	}})

	pre, post := scope.Drain()
	s.Len(pre, 1)
	s.Len(post, 1)

	s.NoError(pre[0].Run(context.Background()))
	s.NoError(post[0].Run(context.Background()))
	s.Equal([]string{"outbox", "forget"}, ran)
}

func (s *ScopeSuite) TestDrainEmptiesQueue() {
	scope := host.NewScope()
	scope.Enqueue(host.Command{Run: func(ctx context.Context) error { return nil }})
	scope.Drain()

	pre, post := scope.Drain()
	s.Empty(pre)
	s.Empty(post)
}

func (s *ScopeSuite) TestWithScopeRoundTrip() {
	scope := host.NewScope()
	ctx := host.WithScope(context.Background(), scope)

	got, ok := host.ScopeFrom(ctx)
	s.True(ok)
	s.Same(scope, got)

	_, ok = host.ScopeFrom(context.Background())
	s.False(ok)
}

func TestScopeSuite(t *testing.T) {
	suite.Run(t, new(ScopeSuite))
}
