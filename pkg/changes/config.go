package changes

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/tracked"
)

// FromConfig builds the configured source chain. Names not built in
// ("git", "mtime") must be supplied in extra, keyed by name; a configured
// name with no source is an error.
func FromConfig(cfg *config.Config, logger *zap.SugaredLogger, extra map[string]Source) (*Chain, error) {
	rules := tracked.FromConfig(cfg)
	var sources []Source
	for _, name := range cfg.Changes.Sources {
		if s, ok := extra[name]; ok {
			sources = append(sources, s)
			continue
		}
		switch name {
		case "git":
			sources = append(sources, NewGitSource(rules, cfg.Changes.GitRange, cfg.Changes.IncludeWorktree, cfg.Changes.GitTimeout))
		case "mtime":
			sources = append(sources, NewMTimeSource(rules, cfg.Changes.Window))
		default:
			return nil, fmt.Errorf("change source %q is not available", name)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no change sources configured")
	}
	return NewChain(logger, sources...), nil
}
