package consumer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/consumer"
)

type CircuitBreakerSuite struct {
	suite.Suite
}

func (s *CircuitBreakerSuite) cfg() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		WindowSize:      4,
		TripThreshold:   2,
		ActiveThreshold: 1,
		ResetInterval:   20 * time.Millisecond,
	}
}

func (s *CircuitBreakerSuite) TestClosedUntilThreshold() {
	cb := consumer.NewCircuitBreaker(s.cfg())
	cb.RecordOutcome(false)
	s.False(cb.IsOpen())
	cb.RecordOutcome(false)
	s.True(cb.IsOpen())
}

func (s *CircuitBreakerSuite) TestRequiresPauseWhileOpen() {
	cb := consumer.NewCircuitBreaker(s.cfg())
	cb.RecordOutcome(false)
	cb.RecordOutcome(false)
	s.True(cb.RequiresPause())
}

func (s *CircuitBreakerSuite) TestHalfOpenAfterResetInterval() {
	cb := consumer.NewCircuitBreaker(s.cfg())
	cb.RecordOutcome(false)
	cb.RecordOutcome(false)
	s.True(cb.IsOpen())

	time.Sleep(30 * time.Millisecond)
	s.False(cb.RequiresPause())

	cb.RecordOutcome(true)
	s.False(cb.IsOpen())
}

func (s *CircuitBreakerSuite) TestHalfOpenFailureReopens() {
	cb := consumer.NewCircuitBreaker(s.cfg())
	cb.RecordOutcome(false)
	cb.RecordOutcome(false)
	time.Sleep(30 * time.Millisecond)
	s.False(cb.RequiresPause()) // transitions to half-open

	cb.RecordOutcome(false)
	s.True(cb.IsOpen())
}

func TestCircuitBreakerSuite(t *testing.T) {
	suite.Run(t, new(CircuitBreakerSuite))
}
