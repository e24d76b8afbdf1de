package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "converge.yaml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".converge"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "converge"

// EnvPrefix prefixes every environment override (CONVERGE_SIZE_MAX_TOTAL, ...).
const EnvPrefix = "CONVERGE"

// Known option values.
var (
	ChangeSources  = []string{"git", "mtime", "index"}
	Digests        = []string{"sha256", "blake2b"}
	ReferenceModes = []string{"auto", "regex", "treesitter"}
)

// Load loads configuration for the tree at root from all layers in order
// of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/converge/config.yaml)
//  3. Project config (.converge/config.yaml or converge.yaml in root)
//  4. <root>/.env entries and CONVERGE_* environment variables
//
// CLI flags are applied separately after Load() returns.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	v := viper.New()
	setDefaults(v, NewConfig())

	// Layer 2: Global user config
	if path := globalConfigPath(); path != "" {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	// Layer 3: Project config
	if path := ProjectConfigPath(absRoot); path != "" {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	// Layer 4: .env and environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := applyDotEnv(v, filepath.Join(absRoot, ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Root = absRoot

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides resolve.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("paths.version_file", d.Paths.VersionFile)
	v.SetDefault("paths.current_file", d.Paths.CurrentFile)
	v.SetDefault("paths.changelog", d.Paths.Changelog)
	v.SetDefault("paths.manifest", d.Paths.Manifest)
	v.SetDefault("paths.versions_dir", d.Paths.VersionsDir)
	v.SetDefault("paths.output_dir", d.Paths.OutputDir)
	v.SetDefault("paths.logs_dir", d.Paths.LogsDir)
	v.SetDefault("paths.state_dir", d.Paths.StateDir)

	v.SetDefault("version.prefix", d.Version.Prefix)
	v.SetDefault("version.width", d.Version.Width)

	v.SetDefault("track.extensions", d.Track.Extensions)
	v.SetDefault("track.exclude_dirs", d.Track.ExcludeDirs)
	v.SetDefault("track.include_hidden", d.Track.IncludeHidden)

	v.SetDefault("manifest.digest", d.Manifest.Digest)
	v.SetDefault("manifest.references", d.Manifest.References)
	v.SetDefault("manifest.workers", d.Manifest.Workers)
	v.SetDefault("manifest.categories", d.Manifest.Categories)
	v.SetDefault("manifest.default_category", d.Manifest.DefaultCategory)
	v.SetDefault("manifest.cache_size", d.Manifest.CacheSize)

	v.SetDefault("changes.sources", d.Changes.Sources)
	v.SetDefault("changes.git_range", d.Changes.GitRange)
	v.SetDefault("changes.include_worktree", d.Changes.IncludeWorktree)
	v.SetDefault("changes.git_timeout", d.Changes.GitTimeout)
	v.SetDefault("changes.window", d.Changes.Window)

	v.SetDefault("changelog.test_markers", d.Changelog.TestMarkers)
	v.SetDefault("changelog.source_extensions", d.Changelog.SourceExtensions)
	v.SetDefault("changelog.doc_extensions", d.Changelog.DocExtensions)

	v.SetDefault("smoke.core_modules", d.Smoke.CoreModules)
	v.SetDefault("smoke.test_command", d.Smoke.TestCommand)
	v.SetDefault("smoke.test_timeout", d.Smoke.TestTimeout)

	v.SetDefault("size.max_total", d.Size.MaxTotal)
	v.SetDefault("size.max_growth", d.Size.MaxGrowth)
	v.SetDefault("size.large_file", d.Size.LargeFile)
	v.SetDefault("size.report_limit", d.Size.ReportLimit)
	v.SetDefault("size.exclude", d.Size.Exclude)

	v.SetDefault("release.min_changes", d.Release.MinChanges)
	v.SetDefault("release.full_prefix", d.Release.FullPrefix)
	v.SetDefault("release.patches_prefix", d.Release.PatchesPrefix)

	v.SetDefault("cycle.lock", d.Cycle.Lock)

	v.SetDefault("publish.endpoint", d.Publish.Endpoint)
	v.SetDefault("publish.bucket", d.Publish.Bucket)
	v.SetDefault("publish.prefix", d.Publish.Prefix)
	v.SetDefault("publish.region", d.Publish.Region)
	v.SetDefault("publish.access_key", d.Publish.AccessKey)
	v.SetDefault("publish.secret_key", d.Publish.SecretKey)
	v.SetDefault("publish.use_ssl", d.Publish.UseSSL)
}

// mergeFile merges a config file into v if it exists.
func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// applyDotEnv feeds CONVERGE_* entries of a .env file into v. Variables
// already present in the real environment win.
func applyDotEnv(v *viper.Viper, path string) error {
	entries, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		name := EnvName(key)
		val, ok := entries[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, val)
	}
	return nil
}

// EnvName returns the environment variable that overrides a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// globalConfigPath returns ~/.config/converge/config.yaml, or "" when the
// user config directory is unknown.
func globalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.yaml")
}

// ProjectConfigPath returns the first project config file found in root:
// .converge/config.{yaml,yml,toml,json} then converge.{yaml,yml,toml,json}.
func ProjectConfigPath(root string) string {
	var candidates []string
	for _, ext := range []string{"yaml", "yml", "toml", "json"} {
		candidates = append(candidates, filepath.Join(root, ConfigDirName, "config."+ext))
	}
	for _, ext := range []string{"yaml", "yml", "toml", "json"} {
		candidates = append(candidates, filepath.Join(root, "converge."+ext))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Track.Extensions) == 0 {
		return fmt.Errorf("track.extensions must not be empty")
	}
	if c.Version.Prefix == "" {
		return fmt.Errorf("version.prefix must not be empty")
	}
	if c.Version.Width <= 0 {
		return fmt.Errorf("version.width must be positive, got %d", c.Version.Width)
	}
	if c.Size.MaxTotal <= 0 || c.Size.MaxGrowth <= 0 || c.Size.LargeFile <= 0 {
		return fmt.Errorf("size thresholds must be positive")
	}
	if c.Release.MinChanges < 0 {
		return fmt.Errorf("release.min_changes must not be negative, got %d", c.Release.MinChanges)
	}
	if len(c.Changes.Sources) == 0 {
		return fmt.Errorf("changes.sources must not be empty")
	}
	for _, s := range c.Changes.Sources {
		if !slices.Contains(ChangeSources, s) {
			return fmt.Errorf("unknown change source %q (valid: %s)", s, strings.Join(ChangeSources, ", "))
		}
	}
	if !slices.Contains(Digests, c.Manifest.Digest) {
		return fmt.Errorf("unknown manifest digest %q (valid: %s)", c.Manifest.Digest, strings.Join(Digests, ", "))
	}
	if !slices.Contains(ReferenceModes, c.Manifest.References) {
		return fmt.Errorf("unknown reference mode %q (valid: %s)", c.Manifest.References, strings.Join(ReferenceModes, ", "))
	}
	if c.Manifest.CacheSize <= 0 {
		return fmt.Errorf("manifest.cache_size must be positive, got %d", c.Manifest.CacheSize)
	}
	if c.Smoke.TestTimeout <= 0 {
		return fmt.Errorf("smoke.test_timeout must be positive")
	}
	return nil
}
