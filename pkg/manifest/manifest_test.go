package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()
	cfg.Manifest.References = "regex"
	return cfg
}

var fixedClock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func build(t *testing.T, cfg *config.Config, opts ...Option) *Manifest {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	b, err := NewBuilder(cfg, log.Nop(), opts...)
	require.NoError(t, err)
	m, err := b.Build(context.Background(), "v0001")
	require.NoError(t, err)
	return m
}

func TestBuild_Entries(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{
		"core.py":             "\"\"\"Core helpers.\"\"\"\nimport os, sys\nfrom json import loads\n",
		"tests/test_core.py":  "import core\n",
		"tools/motion_gen.go": "// Package tools generates motions.\npackage tools\n\nimport (\n\t\"fmt\"\n\tx \"strings\"\n)\n",
		"README.md":           "# readme\n",
		"image.png":           "binary",
		"VERSIONS/v0001/a.py": "import nope\n",
		".git/config.txt":     "ignored",
		"node_modules/m.js":   "require('x')",
	})
	require.NoError(t, os.WriteFile(cfg.ManifestFile(), []byte("{}"), 0o644))

	m := build(t, cfg)

	assert.Equal(t, "v0001", m.Version)
	assert.Equal(t, SHA256, m.Digest)
	var paths []string
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"README.md", "core.py", "tests/test_core.py", "tools/motion_gen.go"}, paths)

	core, ok := m.Lookup("core")
	require.True(t, ok)
	assert.Equal(t, "module", core.Category)
	assert.Equal(t, []string{"json", "os", "sys"}, core.References)
	assert.Equal(t, "Core helpers.", core.Summary)
	assert.Len(t, core.Hash, 64)

	tc, ok := m.Lookup("test_core")
	require.True(t, ok)
	assert.Equal(t, "test", tc.Category)

	mg, ok := m.Lookup("motion_gen")
	require.True(t, ok)
	assert.Equal(t, "motion_module", mg.Category)
	assert.Equal(t, []string{"fmt", "strings"}, mg.References)
	assert.Equal(t, "Package tools generates motions.", mg.Summary)

	readme, ok := m.Lookup("README")
	require.True(t, ok)
	assert.NotNil(t, readme.References)
	assert.Empty(t, readme.References)
}

func TestBuild_DeterministicAcrossWorkers(t *testing.T) {
	cfg := testConfig(t)
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files["pkg/"+name+".py"] = "import " + name + "\n"
	}
	writeTree(t, cfg.Root, files)

	one := build(t, cfg, WithWorkers(1))
	many := build(t, cfg, WithWorkers(8))
	assert.Equal(t, one, many)
}

func TestBuild_BLAKE2b(t *testing.T) {
	cfg := testConfig(t)
	cfg.Manifest.Digest = "blake2b"
	writeTree(t, cfg.Root, map[string]string{"a.txt": "hello"})

	m := build(t, cfg)
	require.Equal(t, 1, m.Len())
	want, err := BLAKE2b.HashBytes([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, want, m.Entries[0].Hash)
	assert.Equal(t, BLAKE2b, m.Digest)
}

func TestNewBuilder_Invalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Manifest.Digest = "md5"
	_, err := NewBuilder(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Manifest.References = "magic"
	_, err = NewBuilder(cfg, nil)
	assert.Error(t, err)
}

type countingExtractor struct {
	RegexExtractor
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, rel string, src []byte) ([]string, error) {
	c.calls++
	return c.RegexExtractor.Extract(ctx, rel, src)
}

func TestBuild_CachesIdenticalContent(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{
		"a/x.py": "import os\n",
		"b/x.py": "import os\n",
		"c/y.py": "import sys\n",
	})
	x := &countingExtractor{}
	m := build(t, cfg, WithExtractor(x), WithWorkers(1))

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, x.calls)
	for _, e := range m.Entries {
		assert.NotEmpty(t, e.References)
	}
}

func TestBuild_CustomClassifier(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{"a.py": "", "b.md": ""})
	m := build(t, cfg, WithClassifier(ClassifierFunc(func(rel string) string {
		return "custom:" + rel
	})))
	assert.Equal(t, "custom:a.py", m.Entries[0].Category)
	assert.Equal(t, "custom:b.md", m.Entries[1].Category)
}

func TestBuild_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{"a.py": ""})
	b, err := NewBuilder(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, "v0001")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteLoad(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{"a.py": "import os\n"})
	m := build(t, cfg)

	require.NoError(t, m.Write(cfg.ManifestFile()))
	got, err := Load(cfg.ManifestFile())
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = Load(filepath.Join(cfg.Root, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerify(t *testing.T) {
	cfg := testConfig(t)
	writeTree(t, cfg.Root, map[string]string{
		"a.py": "import os\n",
		"b.py": "import sys\n",
		"c.md": "doc\n",
	})
	m := build(t, cfg)
	ctx := context.Background()

	require.NoError(t, Verify(ctx, cfg.Root, m))
	assert.Empty(t, VerifyAll(ctx, cfg.Root, m))

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Root, "b.py"), []byte("import json\n"), 0o644))
	err := Verify(ctx, cfg.Root, m)
	var mismatch *HashMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "b.py", mismatch.Path)
	assert.Equal(t, m.Entries[1].Hash, mismatch.Want)

	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "a.py")))
	err = Verify(ctx, cfg.Root, m)
	var missing *MissingFileError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "a.py", missing.Path)

	problems := VerifyAll(ctx, cfg.Root, m)
	require.Len(t, problems, 2)
	assert.True(t, errors.As(problems[0], &missing))
	assert.True(t, errors.As(problems[1], &mismatch))

	assert.Error(t, Verify(ctx, cfg.Root, nil))
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier(config.NewConfig().Manifest)
	tests := []struct {
		path string
		want string
	}{
		{"test_core.py", "test"},
		{"src/canon_scan.py", "canon_scanner"},
		{"Motion.py", "motion_module"},
		{"affidavit_builder.py", "affidavit"},
		{"court/order_writer.py", "court_order"},
		{"config.yaml", "config"},
		{"cli.go", "cli"},
		{"order/helpers.py", "module"},
		{"helpers.py", "module"},
		{"testing_order.py", "test"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.path))
		})
	}
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "core", ModuleName("pkg/core.py"))
	assert.Equal(t, "archive.tar", ModuleName("archive.tar.gz"))
	assert.Equal(t, "Makefile", ModuleName("Makefile"))
}

func TestRegexExtractor(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		want []string
	}{
		{
			name: "python",
			path: "m.py",
			src:  "import os\nimport a.b as c, d  # comment\nfrom x.y import z\n  from . import q\n",
			want: []string{".", "a.b", "d", "os", "x.y"},
		},
		{
			name: "go block",
			path: "m.go",
			src:  "package m\n\nimport (\n\t\"fmt\"\n\tfoo \"example.com/foo\"\n\t_ \"embed\"\n)\n",
			want: []string{"embed", "example.com/foo", "fmt"},
		},
		{
			name: "go single",
			path: "m.go",
			src:  "package m\nimport \"os\"\nimport alias \"strings\"\n",
			want: []string{"os", "strings"},
		},
		{
			name: "javascript",
			path: "m.js",
			src:  "import fs from 'fs'\nimport './side'\nconst x = require(\"lodash\"), y = require('y')\n",
			want: []string{"./side", "fs", "lodash", "y"},
		},
		{
			name: "typescript",
			path: "m.ts",
			src:  "import { A } from \"./a\"\n",
			want: []string{"./a"},
		},
	}
	x := RegexExtractor{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, x.Supports(tt.path))
			refs, err := x.Extract(context.Background(), tt.path, []byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, normalize(refs))
		})
	}
	assert.False(t, x.Supports("README.md"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalize([]string{"b", " a ", "", "b", "a"}))
	assert.NotNil(t, normalize(nil))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Docs here.", Summarize("a.py", []byte("#!/usr/bin/env python\n'''\n  Docs here.\n  More.\n'''\n")))
	assert.Equal(t, "Package x does things.", Summarize("x.go", []byte("// Package x does things.\n// More.\npackage x\n")))
	assert.Equal(t, "Build tags aside.", Summarize("x.go", []byte("//go:build linux\n\n// Build tags aside.\npackage x\n")))
	assert.Equal(t, "", Summarize("a.md", []byte("# title")))

	long := make([]byte, 0, 300)
	long = append(long, `"""`...)
	for range 200 {
		long = append(long, 'x')
	}
	long = append(long, `"""`...)
	assert.Len(t, Summarize("a.py", long), 100)

	// 99 ASCII bytes then a 3-byte rune straddling the limit
	wide := `"""` + strings.Repeat("x", 99) + strings.Repeat("€", 5) + `"""`
	got := Summarize("a.py", []byte(wide))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", 99), got)

	wide = `"""` + strings.Repeat("é", 80) + `"""`
	got = Summarize("a.py", []byte(wide))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 50), got)
}

func TestNewExtractor(t *testing.T) {
	x, err := NewExtractor("regex")
	require.NoError(t, err)
	assert.IsType(t, RegexExtractor{}, x)

	x, err = NewExtractor("auto")
	require.NoError(t, err)
	assert.True(t, x.Supports("a.py"))
}
