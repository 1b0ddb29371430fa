// Package zaplog adapts go.uber.org/zap to chatrelay.Logger.
package zaplog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements chatrelay.Logger on a zap SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a JSON logger writing to stdout.
// level is one of debug, info, warn, error; anything else means info.
func New(service, level string) *Logger {
	return NewWithWriter(service, level, os.Stdout)
}

// NewWithWriter builds a JSON logger writing to w.
func NewWithWriter(service, level string, w io.Writer) *Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapLevel,
	)

	// skip one frame so callers, not this adapter, show up as the source
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", service))

	return &Logger{sugar: base.Sugar()}
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Info logs a plain message at info level.
func (l *Logger) Info(message string) { l.sugar.Info(message) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.sugar.Sync() }
