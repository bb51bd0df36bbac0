package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/middleware"
)

type ChainSuite struct {
	suite.Suite
}

func (s *ChainSuite) TestOrderingGuarantee() {
	var order []string
	record := func(name string) middleware.Stage {
		return middleware.StageFunc{Name: name, Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
			order = append(order, name)
			return next(ctx, env)
		}}
	}

	chain := middleware.New(record("A"), record("B"), record("C"))
	s.NoError(chain.Validate())

	err := chain.Invoke(context.Background(), envelope.New(nil, "t"))
	s.NoError(err)
	s.Equal([]string{"A", "B", "C"}, order)

	ai, _ := chain.HasMiddleware("A")
	bi, _ := chain.HasMiddleware("B")
	s.Less(ai, bi)
}

func (s *ChainSuite) TestShortCircuitHaltsRemainder() {
	var ran []string
	halt := middleware.StageFunc{Name: "halt", Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
		ran = append(ran, "halt")
		return nil // does not call next
	}}
	after := middleware.StageFunc{Name: "after", Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
		ran = append(ran, "after")
		return next(ctx, env)
	}}

	chain := middleware.New(halt, after)
	err := chain.Invoke(context.Background(), envelope.New(nil, "t"))
	s.NoError(err)
	s.Equal([]string{"halt"}, ran)
}

func (s *ChainSuite) TestDuplicateIdentityRejected() {
	dup := middleware.StageFunc{Name: "dup", Fn: func(ctx context.Context, env *envelope.Envelope, next middleware.Next) error {
		return next(ctx, env)
	}}
	chain := middleware.New(dup, dup)
	s.Error(chain.Validate())
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}
