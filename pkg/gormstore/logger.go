// Package gormstore binds this module's outbox and inbox tables to GORM,
// the teacher's ORM of choice across every pkg/database/sql adapter.
package gormstore

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/txkafka/txkafka/pkg/logger"
)

// NewGORMLogger bridges gorm's logger.Interface to the module's slog-based
// logger, the way pkg/database/sql/adapters/{postgres,mysql}'s New()
// expects a database.NewGORMLogger() to exist (that constructor was never
// defined anywhere in the retrieved teacher code; this fills the gap in
// the same idiom rather than pulling in gorm's bundled stdlib logger).
func NewGORMLogger() gormlogger.Interface {
	return &gormLogger{level: gormlogger.Warn, slowThreshold: 200 * time.Millisecond}
}

type gormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level < gormlogger.Info {
		return
	}
	logger.L().InfoContext(ctx, msg, "args", args)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level < gormlogger.Warn {
		return
	}
	logger.L().WarnContext(ctx, msg, "args", args)
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level < gormlogger.Error {
		return
	}
	logger.L().ErrorContext(ctx, msg, "args", args)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		logger.L().ErrorContext(ctx, "gorm query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		logger.L().WarnContext(ctx, "slow gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		logger.L().InfoContext(ctx, "gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
