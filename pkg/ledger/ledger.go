package ledger

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/util"
)

// Ledger owns the VERSION marker and the CURRENT pointer.
type Ledger struct {
	versionPath string
	currentPath string
	prefix      string
	width       int
	log         *zap.SugaredLogger
}

// New creates a ledger from cfg. A nil logger uses the global one.
func New(cfg *config.Config, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{
		versionPath: cfg.VersionFile(),
		currentPath: cfg.CurrentFile(),
		prefix:      cfg.Version.Prefix,
		width:       cfg.Version.Width,
		log:         log.Named(logger, "ledger"),
	}
}

// Zero returns the version that precedes the first cut.
func (l *Ledger) Zero() Version {
	return Version{Prefix: l.prefix, Width: l.width}
}

// Read returns the persisted version. An absent marker yields the zero
// version with no error; a malformed marker yields the zero version and a
// *ParseError.
func (l *Ledger) Read() (Version, error) {
	return l.read(l.versionPath)
}

// Current returns the version the CURRENT pointer names.
func (l *Ledger) Current() (Version, error) {
	return l.read(l.currentPath)
}

func (l *Ledger) read(path string) (Version, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l.Zero(), nil
	}
	if err != nil {
		return l.Zero(), fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := Parse(string(data), l.prefix, l.width)
	if err != nil {
		return l.Zero(), err
	}
	return v, nil
}

// Increment advances the marker by one and persists it atomically. It
// returns the new version and the one it replaced. A malformed marker is
// recovered by restarting at the first valid version.
func (l *Ledger) Increment() (next, prev Version, err error) {
	prev, err = l.Read()
	var perr *ParseError
	switch {
	case errors.As(err, &perr):
		l.log.Warnw("version marker unreadable, restarting sequence", "raw", perr.Raw)
	case err != nil:
		return Version{}, Version{}, err
	}

	next = prev.Next()
	if err := util.WriteFileAtomic(l.versionPath, []byte(next.String()+"\n"), 0o644); err != nil {
		return Version{}, prev, fmt.Errorf("failed to persist version: %w", err)
	}
	l.log.Infow("version incremented", "previous", prev.String(), "current", next.String())
	return next, prev, nil
}

// SetCurrent points CURRENT at v.
func (l *Ledger) SetCurrent(v Version) error {
	if err := util.WriteFileAtomic(l.currentPath, []byte(v.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to update current pointer: %w", err)
	}
	l.log.Debugw("current pointer updated", "version", v.String())
	return nil
}
