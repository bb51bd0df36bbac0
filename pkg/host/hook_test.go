package host_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/txkafka/txkafka/pkg/gormstore"
	"github.com/txkafka/txkafka/pkg/host"
)

type HookSuite struct {
	suite.Suite
	db *gorm.DB
}

func (s *HookSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(gormstore.AutoMigrate(db))
	s.db = db
}

// TestPreCommitFailureRollsBackBusinessSave asserts an outbox-bound command's
// failure rolls back the business save alongside it (spec.md §4.4: the
// outbox insert enlists in the host's own transaction).
func (s *HookSuite) TestPreCommitFailureRollsBackBusinessSave() {
	hook := host.NewSaveChangesHook(s.db, nil)
	scope := host.NewScope()

	scope.Enqueue(host.Command{UsesOutbox: true, Run: func(ctx context.Context) error {
		return assertErr
	}})

	businessRan := false
	err := hook.Save(context.Background(), scope, func(tx *gorm.DB) error {
		businessRan = true
		return tx.Create(&gormstore.InboxRow{Fingerprint: "f1", TypeID: "t"}).Error
	})

	s.Error(err)
	s.True(businessRan)

	var count int64
	s.db.Model(&gormstore.InboxRow{}).Where("fingerprint = ?", "f1").Count(&count)
	s.Zero(count)
}

func (s *HookSuite) TestPostCommitRunsOnlyAfterCommit() {
	hook := host.NewSaveChangesHook(s.db, nil)
	scope := host.NewScope()

	var order []string
	scope.Enqueue(host.Command{UsesOutbox: false, Run: func(ctx context.Context) error {
		order = append(order, "forget-publish")
		return nil
	}})

	err := hook.Save(context.Background(), scope, func(tx *gorm.DB) error {
		order = append(order, "business-save")
		return tx.Create(&gormstore.InboxRow{Fingerprint: "f2", TypeID: "t"}).Error
	})
	s.NoError(err)
	s.Equal([]string{"business-save", "forget-publish"}, order)

	var count int64
	s.db.Model(&gormstore.InboxRow{}).Where("fingerprint = ?", "f2").Count(&count)
	s.Equal(int64(1), count)
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "pre-commit command failed" }

var assertErr = sentinelErr{}

func TestHookSuite(t *testing.T) {
	suite.Run(t, new(HookSuite))
}
