package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM diagnostics into the global slog logger. Statements
// are only traced when SQL echo is on; failed statements are always logged
// at the error level except for record-not-found lookups.
type GormLogger struct {
	level         gormlogger.LogLevel
	echoSQL       bool
	slowThreshold time.Duration
}

// NewGormLogger returns a bridge with the warn level. echoSQL logs every
// statement at the info level, the way a console logger factory would.
func NewGormLogger(echoSQL bool) *GormLogger {
	return &GormLogger{
		level:         gormlogger.Warn,
		echoSQL:       echoSQL,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		Info(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		Warn(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		Error(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		Error(ctx, "sql failed", "component", "gorm", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		Warn(ctx, "slow sql", "component", "gorm", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.echoSQL && Enabled(ctx, slog.LevelInfo):
		sql, rows := fc()
		Info(ctx, "sql", "component", "gorm", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
