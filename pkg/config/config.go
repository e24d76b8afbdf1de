// Package config provides configuration management for converge.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/converge/config.yaml)
//  3. Project config (.converge/config.yaml or converge.yaml)
//  4. .env file and environment variables (CONVERGE_*)
//  5. CLI flags (highest priority)
package config

import (
	"path/filepath"
	"time"
)

// Config is the main configuration struct for converge. Every path and
// threshold the engine uses lives here; nothing is read from globals.
type Config struct {
	// Root is the working tree the engine operates on.
	Root string `mapstructure:"root" yaml:"root,omitempty"`

	// Paths locates persisted state relative to Root.
	Paths PathsConfig `mapstructure:"paths" yaml:"paths"`

	// Version configures the version marker format.
	Version VersionConfig `mapstructure:"version" yaml:"version"`

	// Track configures which files are tracked.
	Track TrackConfig `mapstructure:"track" yaml:"track"`

	// Manifest configures the manifest builder.
	Manifest ManifestConfig `mapstructure:"manifest" yaml:"manifest"`

	// Changes configures change detection.
	Changes ChangesConfig `mapstructure:"changes" yaml:"changes"`

	// Changelog configures changelog bucketing.
	Changelog ChangelogConfig `mapstructure:"changelog" yaml:"changelog"`

	// Smoke configures the smoke test gate.
	Smoke SmokeConfig `mapstructure:"smoke" yaml:"smoke"`

	// Size configures the size budget.
	Size SizeConfig `mapstructure:"size" yaml:"size"`

	// Release configures packaging.
	Release ReleaseConfig `mapstructure:"release" yaml:"release"`

	// Cycle configures orchestration.
	Cycle CycleConfig `mapstructure:"cycle" yaml:"cycle"`

	// Publish configures artifact upload.
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`
}

// PathsConfig holds state file locations, relative to the root.
type PathsConfig struct {
	VersionFile string `mapstructure:"version_file" yaml:"version_file"`
	CurrentFile string `mapstructure:"current_file" yaml:"current_file"`
	Changelog   string `mapstructure:"changelog" yaml:"changelog"`
	Manifest    string `mapstructure:"manifest" yaml:"manifest"`
	VersionsDir string `mapstructure:"versions_dir" yaml:"versions_dir"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	LogsDir     string `mapstructure:"logs_dir" yaml:"logs_dir"`
	StateDir    string `mapstructure:"state_dir" yaml:"state_dir"`
}

// VersionConfig holds the version marker format.
type VersionConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Width  int    `mapstructure:"width" yaml:"width"`
}

// TrackConfig holds the inclusion rules shared by every tree walk.
type TrackConfig struct {
	// Extensions is the allow-list of tracked file extensions.
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`

	// ExcludeDirs are directory names skipped at any depth.
	ExcludeDirs []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`

	// IncludeHidden tracks dot-files and dot-directories.
	IncludeHidden bool `mapstructure:"include_hidden" yaml:"include_hidden"`
}

// CategoryRule maps a filename keyword to a category tag.
type CategoryRule struct {
	Keyword string `mapstructure:"keyword" yaml:"keyword"`
	Tag     string `mapstructure:"tag" yaml:"tag"`
}

// ManifestConfig holds manifest builder settings.
type ManifestConfig struct {
	// Digest is the content digest algorithm: "sha256" or "blake2b".
	Digest string `mapstructure:"digest" yaml:"digest"`

	// References selects the reference extractor: "auto", "regex" or "treesitter".
	References string `mapstructure:"references" yaml:"references"`

	// Workers bounds concurrent hashing. 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// Categories are evaluated in order; the first match wins.
	Categories []CategoryRule `mapstructure:"categories" yaml:"categories"`

	// DefaultCategory applies when no rule matches.
	DefaultCategory string `mapstructure:"default_category" yaml:"default_category"`

	// CacheSize is the number of reference lists kept in memory.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// ChangesConfig holds change detection settings.
type ChangesConfig struct {
	// Sources are tried in order; the first that succeeds wins.
	Sources []string `mapstructure:"sources" yaml:"sources"`

	// GitRange is the revision range diffed by the git source.
	GitRange string `mapstructure:"git_range" yaml:"git_range"`

	// IncludeWorktree adds uncommitted changes to the git source.
	IncludeWorktree bool `mapstructure:"include_worktree" yaml:"include_worktree"`

	// GitTimeout bounds each git invocation.
	GitTimeout time.Duration `mapstructure:"git_timeout" yaml:"git_timeout"`

	// Window is the recency window of the mtime source.
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// ChangelogConfig holds the changelog bucketing rules.
type ChangelogConfig struct {
	TestMarkers      []string `mapstructure:"test_markers" yaml:"test_markers"`
	SourceExtensions []string `mapstructure:"source_extensions" yaml:"source_extensions"`
	DocExtensions    []string `mapstructure:"doc_extensions" yaml:"doc_extensions"`
}

// SmokeConfig holds smoke test settings.
type SmokeConfig struct {
	// CoreModules must resolve to loadable manifest entries.
	CoreModules []string `mapstructure:"core_modules" yaml:"core_modules,omitempty"`

	// TestCommand is the optional external suite (advisory).
	TestCommand []string `mapstructure:"test_command" yaml:"test_command,omitempty"`

	// TestTimeout bounds the external suite.
	TestTimeout time.Duration `mapstructure:"test_timeout" yaml:"test_timeout"`
}

// SizeConfig holds the size budget.
type SizeConfig struct {
	MaxTotal    ByteSize `mapstructure:"max_total" yaml:"max_total"`
	MaxGrowth   ByteSize `mapstructure:"max_growth" yaml:"max_growth"`
	LargeFile   ByteSize `mapstructure:"large_file" yaml:"large_file"`
	ReportLimit int      `mapstructure:"report_limit" yaml:"report_limit"`

	// Exclude holds glob patterns (doublestar syntax).
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// ReleaseConfig holds packaging settings.
type ReleaseConfig struct {
	// MinChanges: more changed files than this triggers a release.
	MinChanges    int    `mapstructure:"min_changes" yaml:"min_changes"`
	FullPrefix    string `mapstructure:"full_prefix" yaml:"full_prefix"`
	PatchesPrefix string `mapstructure:"patches_prefix" yaml:"patches_prefix"`
}

// CycleConfig holds orchestration settings.
type CycleConfig struct {
	// Lock enables the advisory cycle lock.
	Lock bool `mapstructure:"lock" yaml:"lock"`
}

// PublishConfig holds S3-compatible upload settings.
type PublishConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// Path resolves a configured path against Root.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// VersionFile returns the absolute path of the version marker.
func (c *Config) VersionFile() string { return c.Path(c.Paths.VersionFile) }

// CurrentFile returns the absolute path of the runnable pointer.
func (c *Config) CurrentFile() string { return c.Path(c.Paths.CurrentFile) }

// ChangelogFile returns the absolute path of the changelog.
func (c *Config) ChangelogFile() string { return c.Path(c.Paths.Changelog) }

// ManifestFile returns the absolute path of the manifest.
func (c *Config) ManifestFile() string { return c.Path(c.Paths.Manifest) }

// VersionsDir returns the absolute snapshot directory.
func (c *Config) VersionsDir() string { return c.Path(c.Paths.VersionsDir) }

// OutputDir returns the absolute artifact directory.
func (c *Config) OutputDir() string { return c.Path(c.Paths.OutputDir) }

// LogsDir returns the absolute log directory.
func (c *Config) LogsDir() string { return c.Path(c.Paths.LogsDir) }

// StateDir returns the absolute engine state directory.
func (c *Config) StateDir() string { return c.Path(c.Paths.StateDir) }

// LogFile returns the absolute path of a named log file.
func (c *Config) LogFile(name string) string { return filepath.Join(c.LogsDir(), name) }

// CriticalFiles returns the files whose presence the smoke gate requires.
func (c *Config) CriticalFiles() []string {
	return []string{
		c.Paths.VersionFile,
		c.Paths.Changelog,
		c.Paths.Manifest,
		c.Paths.CurrentFile,
	}
}

// EngineDirs returns the root-relative directories the engine writes to.
// Tree walks never descend into them.
func (c *Config) EngineDirs() []string {
	return []string{
		c.Paths.VersionsDir,
		c.Paths.OutputDir,
		c.Paths.LogsDir,
		c.Paths.StateDir,
	}
}
