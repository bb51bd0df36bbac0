package inbox_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/txkafka/txkafka/pkg/inbox"
)

type FingerprintSuite struct {
	suite.Suite
}

func (s *FingerprintSuite) TestDeterministic() {
	type key struct {
		OrderID string
		Amount  int
	}
	a, err := inbox.Fingerprint(key{OrderID: "o1", Amount: 5})
	s.Require().NoError(err)
	b, err := inbox.Fingerprint(key{OrderID: "o1", Amount: 5})
	s.Require().NoError(err)
	s.Equal(a, b)
}

func (s *FingerprintSuite) TestDifferentProjectionsDiffer() {
	a, err := inbox.Fingerprint(map[string]any{"id": "o1"})
	s.Require().NoError(err)
	b, err := inbox.Fingerprint(map[string]any{"id": "o2"})
	s.Require().NoError(err)
	s.NotEqual(a, b)
}

func (s *FingerprintSuite) TestMapKeyOrderDoesNotMatter() {
	a, err := inbox.Fingerprint(map[string]string{"a": "1", "b": "2"})
	s.Require().NoError(err)
	b, err := inbox.Fingerprint(map[string]string{"b": "2", "a": "1"})
	s.Require().NoError(err)
	s.Equal(a, b)
}

func TestFingerprintSuite(t *testing.T) {
	suite.Run(t, new(FingerprintSuite))
}
