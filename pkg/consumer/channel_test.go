package consumer_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/consumer"
	"github.com/txkafka/txkafka/pkg/envelope"
)

type ChannelSuite struct {
	suite.Suite
}

func task(id string) *consumer.ConsumeTask {
	return &consumer.ConsumeTask{Env: envelope.New(nil, id), Topic: "t"}
}

func (s *ChannelSuite) TestWaterMarks() {
	ch := consumer.NewPerTypeChannel(10, 8, 2, config.FullModeWait)
	for i := 0; i < 8; i++ {
		ch.Enqueue(task("x"))
	}
	s.True(ch.AtOrAboveHigh())
	s.False(ch.AtOrBelowLow())

	for i := 0; i < 7; i++ {
		ch.Dequeue()
	}
	s.True(ch.AtOrBelowLow())
}

func (s *ChannelSuite) TestDropOldestMakesRoomInsteadOfBlocking() {
	ch := consumer.NewPerTypeChannel(2, 2, 0, config.FullModeDropOldest)
	ch.Enqueue(task("1"))
	ch.Enqueue(task("2"))
	ch.Enqueue(task("3")) // would block under FullModeWait; must not here

	s.Equal(int64(2), ch.Count())
	first, ok := ch.Dequeue()
	s.True(ok)
	s.Equal("2", first.Env.TypeID)
}

func (s *ChannelSuite) TestDropNewestDiscardsIncoming() {
	ch := consumer.NewPerTypeChannel(2, 2, 0, config.FullModeDropNewest)
	ch.Enqueue(task("1"))
	ch.Enqueue(task("2"))
	ch.Enqueue(task("3")) // dropped: buffer is full and capacity doesn't grow

	s.Equal(int64(2), ch.Count())
	first, ok := ch.Dequeue()
	s.True(ok)
	s.Equal("1", first.Env.TypeID)
	second, ok := ch.Dequeue()
	s.True(ok)
	s.Equal("2", second.Env.TypeID)
}

func TestChannelSuite(t *testing.T) {
	suite.Run(t, new(ChannelSuite))
}
