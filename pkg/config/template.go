package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const templateHeader = `# converge configuration
#
# Every key can be overridden with an environment variable:
#   size.max_total -> CONVERGE_SIZE_MAX_TOTAL
# Sizes accept units (650MiB, 10 MB); durations use Go syntax (24h, 60s).

`

// DefaultYAML renders the built-in defaults as a commented YAML document.
func DefaultYAML() ([]byte, error) {
	cfg := NewConfig()
	cfg.Root = ""

	var buf bytes.Buffer
	buf.WriteString(templateHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default config to path. It refuses to overwrite
// an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
