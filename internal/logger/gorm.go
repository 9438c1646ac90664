package logger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's query logging through zerolog.
type GormLogger struct {
	logger        zerolog.Logger
	slowThreshold time.Duration
}

func NewGormLogger(logger zerolog.Logger) *GormLogger {
	return &GormLogger{
		logger:        logger.With().Str("component", "gorm").Logger(),
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	switch level {
	case gormlogger.Silent:
		clone.logger = l.logger.Level(zerolog.Disabled)
	case gormlogger.Error:
		clone.logger = l.logger.Level(zerolog.ErrorLevel)
	case gormlogger.Warn:
		clone.logger = l.logger.Level(zerolog.WarnLevel)
	case gormlogger.Info:
		clone.logger = l.logger.Level(zerolog.DebugLevel)
	}
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.logger.Info().Msgf(msg, args...)
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.logger.Warn().Msgf(msg, args...)
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.logger.Error().Msgf(msg, args...)
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Query failed")
	case elapsed > l.slowThreshold:
		sql, rows := fc()
		l.logger.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Slow query")
	default:
		if l.logger.GetLevel() <= zerolog.DebugLevel {
			sql, rows := fc()
			l.logger.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Query")
		}
	}
}
