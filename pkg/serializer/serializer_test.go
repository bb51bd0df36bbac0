package serializer_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/serializer"
	jsonadapter "github.com/txkafka/txkafka/pkg/serializer/adapters/json"
)

type widget struct {
	Name string
}

type SerializerSuite struct {
	suite.Suite
}

func (s *SerializerSuite) TestRoundTrip() {
	registry := serializer.NewRegistry()
	s.Require().NoError(serializer.Register[widget](registry, "widget", jsonadapter.New[widget]()))

	headers := envelope.NewHeaders()
	payload, typeID, err := registry.Serialize(headers, widget{Name: "gizmo"})
	s.Require().NoError(err)
	s.Equal("widget", typeID)
	s.Equal("widget", headers.GetString(envelope.HeaderType))

	message, typeID, err := registry.Deserialize(headers, payload)
	s.Require().NoError(err)
	s.Equal("widget", typeID)
	s.Equal(widget{Name: "gizmo"}, message)
}

func (s *SerializerSuite) TestDuplicateRegistrationRejected() {
	registry := serializer.NewRegistry()
	s.Require().NoError(serializer.Register[widget](registry, "widget", jsonadapter.New[widget]()))
	err := serializer.Register[widget](registry, "widget", jsonadapter.New[widget]())
	s.Error(err)
}

func (s *SerializerSuite) TestUnknownTypeOnDeserialize() {
	registry := serializer.NewRegistry()
	headers := envelope.NewHeaders()
	headers.SetString(envelope.HeaderType, "nope")
	_, _, err := registry.Deserialize(headers, []byte("{}"))
	s.Error(err)
}

func TestSerializerSuite(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}
