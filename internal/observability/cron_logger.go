package observability

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes robfig/cron's internal logging (panics, skipped runs) into zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

// CronLogger adapts the logger to cron.Logger.
func (l *Logger) CronLogger() cron.Logger {
	return cronLogger{sugar: l.zapLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Named("cron")}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.sugar.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
