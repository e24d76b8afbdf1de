// Package log is the process-wide zap logger for converge. Verbosity
// follows the kubectl -v=N convention.
package log

import "go.uber.org/zap/zapcore"

// LevelTrace sits one step below zap's debug level.
const LevelTrace = zapcore.Level(-2)

// Verbosity levels accepted by -v.
const (
	VerbosityError = iota // errors only
	VerbosityWarn         // stage failures that were recovered, stale locks
	VerbosityInfo         // stage transitions, versions, summaries
	VerbosityDebug        // files hashed, sources tried, timing
	VerbosityTrace        // per-file references
)

// byVerbosity is indexed by verbosity.
var byVerbosity = [...]zapcore.Level{
	VerbosityError: zapcore.ErrorLevel,
	VerbosityWarn:  zapcore.WarnLevel,
	VerbosityInfo:  zapcore.InfoLevel,
	VerbosityDebug: zapcore.DebugLevel,
	VerbosityTrace: LevelTrace,
}

// VerbosityToLevel maps -v=N to a zap level. Values outside the scale
// clamp to its ends.
func VerbosityToLevel(v int) zapcore.Level {
	v = min(max(v, VerbosityError), VerbosityTrace)
	return byVerbosity[v]
}

// LevelToVerbosity is the inverse of VerbosityToLevel: the lowest
// verbosity at which l is emitted.
func LevelToVerbosity(l zapcore.Level) int {
	for v, lvl := range byVerbosity {
		if l >= lvl {
			return v
		}
	}
	return VerbosityTrace
}

// LevelName returns the display name of l; LevelTrace renders as TRACE.
func LevelName(l zapcore.Level) string {
	if l == LevelTrace {
		return "TRACE"
	}
	return l.CapitalString()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(LevelName(l))
}
