package outbox_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/coordination"
	"github.com/txkafka/txkafka/pkg/envelope"
	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/outbox"
)

type PollEngineSuite struct {
	suite.Suite
	db *gorm.DB
}

func (s *PollEngineSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	s.Require().NoError(err)
	s.Require().NoError(gormstore.AutoMigrate(db))
	s.db = db
}

func (s *PollEngineSuite) TestDispatchesPendingRowAndMarksSuccess() {
	row, err := gormstore.NewOutboxRow("orders", envelope.New(nil, "order.created"))
	s.Require().NoError(err)
	s.Require().NoError(s.db.Create(row).Error)

	engine := outbox.NewPollEngine(s.db, outbox.PollEngineConfig{
		PollingInterval:      5 * time.Millisecond,
		MaxRowsPerTick:       10,
		CoordinationStrategy: coordination.SingleNode{},
	})

	var dispatched int32
	engine.RegisterDispatcher("order.created", "orders", func(ctx context.Context, env *envelope.Envelope) error {
		atomic.AddInt32(&dispatched, 1)
		return nil
	})

	engine.Start(context.Background())
	defer engine.Stop()

	s.Eventually(func() bool {
		var count int64
		s.db.Model(&gormstore.OutboxRow{}).Where("is_success = ?", true).Count(&count)
		return count == 1
	}, time.Second, 5*time.Millisecond)

	s.Equal(int32(1), atomic.LoadInt32(&dispatched))
}

func (s *PollEngineSuite) TestFailedDispatchIncrementsRetriesAndLeavesRowPending() {
	row, err := gormstore.NewOutboxRow("orders", envelope.New(nil, "order.created"))
	s.Require().NoError(err)
	s.Require().NoError(s.db.Create(row).Error)

	engine := outbox.NewPollEngine(s.db, outbox.PollEngineConfig{
		PollingInterval: 5 * time.Millisecond,
		MaxRowsPerTick:  10,
	})
	engine.RegisterDispatcher("order.created", "orders", func(ctx context.Context, env *envelope.Envelope) error {
		return assertErr
	})

	engine.Start(context.Background())
	defer engine.Stop()

	s.Eventually(func() bool {
		var fresh gormstore.OutboxRow
		s.db.First(&fresh, row.SequenceNumber)
		return fresh.Retries > 0
	}, time.Second, 5*time.Millisecond)

	var fresh gormstore.OutboxRow
	s.db.First(&fresh, row.SequenceNumber)
	s.False(fresh.IsSuccess)
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "dispatch failed" }

var assertErr = sentinelErr{}

func TestPollEngineSuite(t *testing.T) {
	suite.Run(t, new(PollEngineSuite))
}
