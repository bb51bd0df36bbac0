package coordination_test

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/coordination"
)

type StrategySuite struct {
	suite.Suite
}

func (s *StrategySuite) TestSingleNodeAlwaysScoped() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	s.Require().NoError(err)

	scoped, ok := coordination.SingleNode{}.Scope(db)
	s.True(ok)
	s.NotNil(scoped)
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategySuite))
}
