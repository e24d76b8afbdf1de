package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CoreOptions configures a console core.
type CoreOptions struct {
	Level  zapcore.LevelEnabler
	Format string // "text" or "json"
	Output io.Writer
}

// NewCore creates the appropriate core based on options.
func NewCore(opts CoreOptions) zapcore.Core {
	if opts.Output == nil {
		opts.Output = os.Stderr // Always stderr, never stdout
	}
	if opts.Level == nil {
		opts.Level = zapcore.WarnLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = encodeLevel

	var enc zapcore.Encoder
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	return zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(opts.Output)), opts.Level)
}

// Tee returns a logger that writes to base and additionally appends JSON
// lines at info level and above to the file at path. The returned close
// func flushes and closes the file.
func Tee(base *zap.Logger, path string) (*zap.Logger, func() error, error) {
	if base == nil {
		base = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = encodeLevel
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	l := zap.New(zapcore.NewTee(base.Core(), fileCore))
	closeFn := func() error {
		_ = l.Sync()
		return f.Close()
	}
	return l, closeFn, nil
}
