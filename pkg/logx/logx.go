// Package logx is the application-wide structured logging facade, backed by
// go.uber.org/zap. Packages log through the package-level functions; cmd/
// configures the backend once at startup via Init.
package logx

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a set of structured log fields.
type Fields map[string]any

var (
	mu     sync.RWMutex
	logger = newLogger("info", false)
)

// Init reconfigures the global logger. Level is one of trace|debug|info|warn|
// error; json selects JSON encoding (production) over console encoding.
func Init(level string, json bool) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(level, json)
}

func newLogger(level string, json bool) *zap.SugaredLogger {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "trace", "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)
	return zap.New(core, zap.AddCallerSkip(1)).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Entry is a logger with pre-attached fields.
type Entry struct {
	s *zap.SugaredLogger
}

// WithFields returns an Entry carrying the given fields.
func WithFields(fields Fields) *Entry {
	return &Entry{s: current().With(fieldsToKV(fields)...)}
}

// WithError returns an Entry carrying the error as a field.
func WithError(err error) *Entry {
	return &Entry{s: current().With("error", err)}
}

// WithFields returns a child Entry with the given fields added.
func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{s: e.s.With(fieldsToKV(fields)...)}
}

// WithError returns a child Entry with the error added as a field.
func (e *Entry) WithError(err error) *Entry {
	return &Entry{s: e.s.With("error", err)}
}

func fieldsToKV(fields Fields) []any {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}

func (e *Entry) Debug(msg string)                  { e.s.Debug(msg) }
func (e *Entry) Info(msg string)                   { e.s.Info(msg) }
func (e *Entry) Warn(msg string)                   { e.s.Warn(msg) }
func (e *Entry) Error(msg string)                  { e.s.Error(msg) }
func (e *Entry) Debugf(format string, args ...any) { e.s.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...any)  { e.s.Infof(format, args...) }
func (e *Entry) Warnf(format string, args ...any)  { e.s.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...any) { e.s.Errorf(format, args...) }

func Debug(msg string) { current().Debug(msg) }
func Info(msg string)  { current().Info(msg) }
func Warn(msg string)  { current().Warn(msg) }
func Error(msg string) { current().Error(msg) }

// Fatal logs the message and exits the process.
func Fatal(msg string) { current().Fatal(msg) }

func Debugf(format string, args ...any) { current().Debugf(format, args...) }
func Infof(format string, args ...any)  { current().Infof(format, args...) }
func Warnf(format string, args ...any)  { current().Warnf(format, args...) }
func Errorf(format string, args ...any) { current().Errorf(format, args...) }
func Fatalf(format string, args ...any) { current().Fatalf(format, args...) }
