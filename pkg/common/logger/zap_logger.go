package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is the structured logger used when output is not a terminal (cron, systemd units).
type ZapLogger struct {
	log *zap.SugaredLogger
}

func NewZapLogger(verbose bool) *ZapLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	return &ZapLogger{log: l.Sugar()}
}

// NewZapLoggerFrom wraps an existing zap logger, mainly for tests using zaptest/observer.
func NewZapLoggerFrom(l *zap.Logger) *ZapLogger {
	return &ZapLogger{log: l.Sugar()}
}

func (z *ZapLogger) Title(msg string, args ...any) { z.log.Infof(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.log.Infof(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.log.Warnf(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.log.Errorf(msg, args...) }
func (z *ZapLogger) Debug(msg string, args ...any) { z.log.Debugf(msg, args...) }

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.log.Sync()
}
