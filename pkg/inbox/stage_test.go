package inbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/config"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/inbox"
	"github.com/txkafka/txkafka/pkg/middleware"
	"github.com/txkafka/txkafka/pkg/txscope"
)

type order struct {
	ID string
}

type StageSuite struct {
	suite.Suite
	db *gorm.DB
}

func (s *StageSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	s.Require().NoError(err)
	s.Require().NoError(gormstore.AutoMigrate(db))
	s.db = db
}

func (s *StageSuite) invoke(stage middleware.Stage, env *envelope.Envelope) (bool, error) {
	var handlerRan bool
	var err error
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ctx := txscope.With(context.Background(), tx)
		return stage.Invoke(ctx, env, func(ctx context.Context, env *envelope.Envelope) error {
			handlerRan = true
			return nil
		})
	})
	return handlerRan, err
}

func (s *StageSuite) TestFirstDeliveryRunsHandler() {
	stage := inbox.NewStage[order]("order.created", config.DedupConfig[order]{
		Enabled:             true,
		FingerprintAccessor: func(o order) any { return o.ID },
	})

	env := envelope.New(order{ID: "o1"}, "order.created")
	ran, err := s.invoke(stage, env)
	s.NoError(err)
	s.True(ran)
}

func (s *StageSuite) TestDuplicateDeliverySkipsHandler() {
	stage := inbox.NewStage[order]("order.created", config.DedupConfig[order]{
		Enabled:             true,
		FingerprintAccessor: func(o order) any { return o.ID },
	})

	env := envelope.New(order{ID: "o1"}, "order.created")
	_, err := s.invoke(stage, env)
	s.Require().NoError(err)

	ran, err := s.invoke(stage, envelope.New(order{ID: "o1"}, "order.created"))
	s.NoError(err)
	s.False(ran)
}

func (s *StageSuite) TestDisabledDedupAlwaysRunsHandler() {
	stage := inbox.NewStage[order]("order.created", config.DedupConfig[order]{Enabled: false})

	ran, err := s.invoke(stage, envelope.New(order{ID: "o1"}, "order.created"))
	s.NoError(err)
	s.True(ran)

	ran, err = s.invoke(stage, envelope.New(order{ID: "o1"}, "order.created"))
	s.NoError(err)
	s.True(ran)
}

func TestStageSuite(t *testing.T) {
	suite.Run(t, new(StageSuite))
}
