package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

var (
	mu    sync.RWMutex
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

// Init builds the process logger for the given environment.
func Init(mode string) error {
	var config zap.Config
	if mode == ProductionMode {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Replace(zapLogger)
	return nil
}

// Replace swaps the process logger. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) {
	mu.Lock()
	base = l
	sugar = l.Sugar()
	mu.Unlock()
}

func current() (*zap.Logger, *zap.SugaredLogger) {
	mu.RLock()
	b, s := base, sugar
	mu.RUnlock()
	if b == nil {
		Replace(zap.NewNop())
		return current()
	}
	return b, s
}

// L returns the structured logger for call sites that attach fields.
func L() *zap.Logger {
	b, _ := current()
	return b.WithOptions(zap.AddCallerSkip(-1))
}

func Info(format string, v ...interface{}) {
	_, s := current()
	s.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	_, s := current()
	s.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	_, s := current()
	s.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	_, s := current()
	s.Debugf(format, v...)
}

func Sync() {
	b, _ := current()
	_ = b.Sync()
}
