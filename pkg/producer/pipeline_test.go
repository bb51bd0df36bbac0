package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/kafkabroker"
	"github.com/txkafka/txkafka/pkg/producer"
	"github.com/txkafka/txkafka/pkg/serializer"
	jsonadapter "github.com/txkafka/txkafka/pkg/serializer/adapters/json"
)

type widget struct {
	Name string
}

type fakeProducer struct {
	produced []string
	fail     bool
}

func (f *fakeProducer) Produce(topic string, key []byte, hasKey bool, value []byte, headers map[string][]byte, onDelivery kafkabroker.DeliveryCallback) error {
	f.produced = append(f.produced, topic)
	if onDelivery != nil {
		var err error
		if f.fail {
			err = assertErr
		}
		onDelivery(kafkabroker.DeliveryReport{Err: err})
	}
	return nil
}

func (f *fakeProducer) Flush(timeout time.Duration) error { return nil }
func (f *fakeProducer) Close() error                      { return nil }

type sentinelErr struct{}

func (sentinelErr) Error() string { return "broker rejected" }

var assertErr = sentinelErr{}

type PipelineSuite struct {
	suite.Suite
}

func (s *PipelineSuite) buildPipeline(client kafkabroker.ProducerClient, forget config.ForgetStrategy) *producer.Pipeline[widget] {
	registry := serializer.NewRegistry()
	s.Require().NoError(serializer.Register[widget](registry, "widget", jsonadapter.New[widget]()))

	cfg := config.TypeConfig[widget]{
		TypeID: "widget",
		Topic:  "widgets",
		Forget: forget,
	}
	persist := producer.NewForgetStage(forget, 50*time.Millisecond)
	p, err := producer.Build(cfg, registry, client, persist)
	s.Require().NoError(err)
	return p
}

func (s *PipelineSuite) TestPublishHappyPath() {
	client := &fakeProducer{}
	p := s.buildPipeline(client, config.ForgetAwait)

	err := p.Publish(context.Background(), widget{Name: "gizmo"})
	s.NoError(err)
	s.Equal([]string{"widgets"}, client.produced)
}

func (s *PipelineSuite) TestForgetAwaitSwallowsBrokerError() {
	client := &fakeProducer{fail: true}
	p := s.buildPipeline(client, config.ForgetAwait)

	err := p.Publish(context.Background(), widget{Name: "gizmo"})
	s.NoError(err) // forget strategies never surface the broker's error
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}
