package log

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger    atomic.Pointer[zap.Logger]
	level     = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	verbosity atomic.Int32
)

func init() {
	// Default logger (warnings only) until Init is called
	verbosity.Store(VerbosityWarn)
	logger.Store(zap.New(NewCore(CoreOptions{Level: level, Format: "text"})))
}

// Init initializes the global logger (call once at startup).
func Init(v int, format string) {
	SetVerbosity(v)
	newLogger := zap.New(NewCore(CoreOptions{Level: level, Format: format}))
	logger.Store(newLogger)
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.SetLevel(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger instance.
func Logger() *zap.Logger {
	return logger.Load()
}

// Sugar returns the current logger in its key/value form.
func Sugar() *zap.SugaredLogger {
	return logger.Load().Sugar()
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Error logs at error level (v=0).
func Error(msg string, kv ...any) {
	Sugar().Errorw(msg, kv...)
}

// Warn logs at warn level (v=1).
func Warn(msg string, kv ...any) {
	Sugar().Warnw(msg, kv...)
}

// Info logs at info level (v=2).
func Info(msg string, kv ...any) {
	Sugar().Infow(msg, kv...)
}

// Debug logs at debug level (v=3).
func Debug(msg string, kv ...any) {
	Sugar().Debugw(msg, kv...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, fields ...zap.Field) {
	if ce := logger.Load().Check(LevelTrace, msg); ce != nil {
		ce.Write(fields...)
	}
}

// V returns a logger that only logs if verbosity >= level.
// Usage: log.V(3).Infow("detailed", "key", value)
func V(v int) *zap.SugaredLogger {
	if int(verbosity.Load()) >= v {
		return Sugar()
	}
	return Nop()
}

// With returns a logger with additional context.
func With(kv ...any) *zap.SugaredLogger {
	return Sugar().With(kv...)
}

// Component returns a logger tagged with component name.
func Component(name string) *zap.SugaredLogger {
	return Sugar().With("component", name)
}

// Named tags an injected logger with a component, falling back to the
// global logger when l is nil.
func Named(l *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if l == nil {
		return Component(name)
	}
	return l.With("component", name)
}
