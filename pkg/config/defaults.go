package config

import "time"

// Default file names, relative to the root.
const (
	DefaultVersionFile = "VERSION"
	DefaultCurrentFile = "CURRENT"
	DefaultChangelog   = "CHANGELOG.md"
	DefaultManifest    = "MANIFEST.json"
	DefaultVersionsDir = "VERSIONS"
	DefaultOutputDir   = "output"
	DefaultLogsDir     = "logs"
	DefaultStateDir    = ".converge"
)

// Log file names inside the logs directory.
const (
	CycleLogName  = "convergence_cycle.log"
	SmokeLogName  = "smoke_tests.log"
	BuildLogName  = "build.log"
	SizeReportLog = "size_report.log"
)

// NewConfig returns a Config populated with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Root: ".",
		Paths: PathsConfig{
			VersionFile: DefaultVersionFile,
			CurrentFile: DefaultCurrentFile,
			Changelog:   DefaultChangelog,
			Manifest:    DefaultManifest,
			VersionsDir: DefaultVersionsDir,
			OutputDir:   DefaultOutputDir,
			LogsDir:     DefaultLogsDir,
			StateDir:    DefaultStateDir,
		},
		Version: VersionConfig{
			Prefix: "v",
			Width:  4,
		},
		Track: TrackConfig{
			Extensions:  []string{".py", ".go", ".js", ".ts", ".sh", ".json", ".yaml", ".yml", ".md", ".txt"},
			ExcludeDirs: []string{".git", "__pycache__", "node_modules", ".venv", "venv", "dist", "build"},
		},
		Manifest: ManifestConfig{
			Digest:     "sha256",
			References: "auto",
			Categories: []CategoryRule{
				{Keyword: "test", Tag: "test"},
				{Keyword: "canon", Tag: "canon_scanner"},
				{Keyword: "motion", Tag: "motion_module"},
				{Keyword: "affidavit", Tag: "affidavit"},
				{Keyword: "order", Tag: "court_order"},
				{Keyword: "config", Tag: "config"},
				{Keyword: "cli", Tag: "cli"},
			},
			DefaultCategory: "module",
			CacheSize:       1024,
		},
		Changes: ChangesConfig{
			Sources:         []string{"git", "mtime"},
			GitRange:        "HEAD~1..HEAD",
			IncludeWorktree: true,
			GitTimeout:      30 * time.Second,
			Window:          24 * time.Hour,
		},
		Changelog: ChangelogConfig{
			TestMarkers:      []string{"test"},
			SourceExtensions: []string{".py", ".go", ".js", ".ts", ".sh"},
			DocExtensions:    []string{".md", ".txt"},
		},
		Smoke: SmokeConfig{
			TestTimeout: 60 * time.Second,
		},
		Size: SizeConfig{
			MaxTotal:    650 * MiB,
			MaxGrowth:   50 * MiB,
			LargeFile:   10 * MiB,
			ReportLimit: 10,
			Exclude: []string{
				"*.weights", "*.model", "*.bin",
				"*.mp4", "*.avi", "*.mov", "*.mkv",
				"*.mp3", "*.wav", "*.flac",
				"*.jpg", "*.jpeg", "*.png", "*.gif", "*.bmp",
				"__pycache__", "*.pyc",
				".git", ".github", "node_modules", ".venv", "venv",
				".pytest_cache", ".mypy_cache", "*.egg-info",
				"dist", "build",
			},
		},
		Release: ReleaseConfig{
			MinChanges:    2,
			FullPrefix:    "RELEASE",
			PatchesPrefix: "PATCHES",
		},
		Cycle: CycleConfig{
			Lock: true,
		},
		Publish: PublishConfig{
			Prefix: "releases",
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}
