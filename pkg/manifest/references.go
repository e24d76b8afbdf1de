package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/treesitter"
)

// ReferenceExtractor finds the modules a source file declares it depends on.
type ReferenceExtractor interface {
	// Supports reports whether the extractor understands the file type.
	Supports(rel string) bool

	// Extract returns the references found in src; order and duplicates
	// are normalized by the builder.
	Extract(ctx context.Context, rel string, src []byte) ([]string, error)
}

// NewExtractor returns the extractor for a configured mode: "regex",
// "treesitter" (fails without a parser backend) or "auto" (tree-sitter
// when compiled in, patterns otherwise).
func NewExtractor(mode string) (ReferenceExtractor, error) {
	switch mode {
	case "regex":
		return RegexExtractor{}, nil
	case "treesitter":
		ts, err := NewTreeSitterExtractor()
		if err != nil {
			return nil, err
		}
		return fallback{primary: ts, secondary: RegexExtractor{}}, nil
	case "auto", "":
		ts, err := NewTreeSitterExtractor()
		if err != nil {
			return RegexExtractor{}, nil
		}
		return fallback{primary: ts, secondary: RegexExtractor{}}, nil
	default:
		return nil, fmt.Errorf("unknown reference mode %q", mode)
	}
}

// normalize de-duplicates and sorts references, dropping blanks.
func normalize(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

var (
	pyImport     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromImport = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\s`)
	goSingle     = regexp.MustCompile(`^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	goBlockStart = regexp.MustCompile(`^\s*import\s*\(\s*$`)
	goBlockSpec  = regexp.MustCompile(`^\s*(?:[\w.]+\s+)?"([^"]+)"`)
	jsImport     = regexp.MustCompile(`^\s*import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequire    = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

// RegexExtractor recognizes import statements line by line for Python,
// Go and JavaScript/TypeScript.
type RegexExtractor struct{}

// Supports implements ReferenceExtractor.
func (RegexExtractor) Supports(rel string) bool {
	switch strings.ToLower(path.Ext(rel)) {
	case ".py", ".go", ".js", ".mjs", ".cjs", ".jsx", ".ts":
		return true
	}
	return false
}

// Extract implements ReferenceExtractor.
func (RegexExtractor) Extract(_ context.Context, rel string, src []byte) ([]string, error) {
	switch strings.ToLower(path.Ext(rel)) {
	case ".py":
		return pythonRefs(src), nil
	case ".go":
		return goRefs(src), nil
	case ".js", ".mjs", ".cjs", ".jsx", ".ts":
		return jsRefs(src), nil
	}
	return nil, nil
}

func pythonRefs(src []byte) []string {
	var refs []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := pyFromImport.FindStringSubmatch(line); m != nil {
			refs = append(refs, m[1])
			continue
		}
		if m := pyImport.FindStringSubmatch(line); m != nil {
			clause, _, _ := strings.Cut(m[1], "#")
			for _, part := range strings.Split(clause, ",") {
				name, _, _ := strings.Cut(strings.TrimSpace(part), " ")
				refs = append(refs, name)
			}
		}
	}
	return refs
}

func goRefs(src []byte) []string {
	var refs []string
	inBlock := false
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case inBlock:
			if strings.HasPrefix(strings.TrimSpace(line), ")") {
				inBlock = false
				continue
			}
			if m := goBlockSpec.FindStringSubmatch(line); m != nil {
				refs = append(refs, m[1])
			}
		case goBlockStart.MatchString(line):
			inBlock = true
		default:
			if m := goSingle.FindStringSubmatch(line); m != nil {
				refs = append(refs, m[1])
			}
		}
	}
	return refs
}

func jsRefs(src []byte) []string {
	var refs []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := jsImport.FindStringSubmatch(line); m != nil {
			refs = append(refs, m[1])
		}
		for _, m := range jsRequire.FindAllStringSubmatch(line, -1) {
			refs = append(refs, m[1])
		}
	}
	return refs
}

// TreeSitterExtractor parses files with tree-sitter grammars.
type TreeSitterExtractor struct {
	backend treesitter.Backend
}

// NewTreeSitterExtractor returns an extractor backed by the compiled-in
// tree-sitter backend.
func NewTreeSitterExtractor() (*TreeSitterExtractor, error) {
	b, err := treesitter.NewBackendFromEnv()
	if err != nil {
		return nil, err
	}
	return &TreeSitterExtractor{backend: b}, nil
}

// Supports implements ReferenceExtractor.
func (x *TreeSitterExtractor) Supports(rel string) bool {
	lang, ok := treesitter.LanguageForExt(path.Ext(rel))
	return ok && x.backend.SupportsLanguage(lang)
}

// Extract implements ReferenceExtractor. A parser is created per call
// because parsers are not safe for concurrent use.
func (x *TreeSitterExtractor) Extract(ctx context.Context, rel string, src []byte) ([]string, error) {
	lang, ok := treesitter.LanguageForExt(path.Ext(rel))
	if !ok {
		return nil, nil
	}
	parser, err := x.backend.NewParser(lang)
	if err != nil {
		return nil, err
	}
	defer func() { _ = parser.Close() }()

	tree, err := parser.Parse(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	defer func() { _ = tree.Close() }()

	return treesitter.Imports(tree, lang), nil
}

// fallback tries primary for the files it supports and secondary otherwise.
type fallback struct {
	primary   ReferenceExtractor
	secondary ReferenceExtractor
}

func (f fallback) Supports(rel string) bool {
	return f.primary.Supports(rel) || f.secondary.Supports(rel)
}

func (f fallback) Extract(ctx context.Context, rel string, src []byte) ([]string, error) {
	if f.primary.Supports(rel) {
		refs, err := f.primary.Extract(ctx, rel, src)
		if err == nil || !f.secondary.Supports(rel) {
			return refs, err
		}
	}
	return f.secondary.Extract(ctx, rel, src)
}

const maxSummary = 100

// Summarize returns the first line of a file's leading documentation: a
// Python module docstring or a Go package comment, at most maxSummary
// bytes of valid UTF-8. Empty when absent.
func Summarize(rel string, src []byte) string {
	var line string
	switch strings.ToLower(path.Ext(rel)) {
	case ".py":
		line = pythonDocstring(string(src))
	case ".go":
		line = goPackageComment(string(src))
	}
	line = strings.TrimSpace(line)
	if len(line) > maxSummary {
		// cut on a rune boundary at or below the byte limit
		n := maxSummary
		for n > 0 && !utf8.RuneStart(line[n]) {
			n--
		}
		line = line[:n]
	}
	return line
}

func pythonDocstring(s string) string {
	for _, q := range []string{`"""`, `'''`} {
		i := strings.Index(s, q)
		if i < 0 {
			continue
		}
		body := s[i+len(q):]
		if j := strings.Index(body, q); j >= 0 {
			body = body[:j]
		}
		for _, l := range strings.Split(body, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				return l
			}
		}
	}
	return ""
}

func goPackageComment(s string) string {
	var last string
	for _, l := range strings.Split(s, "\n") {
		t := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(t, "// Package "):
			return strings.TrimPrefix(t, "// ")
		case strings.HasPrefix(t, "//"):
			if last == "" {
				last = strings.TrimSpace(strings.TrimPrefix(t, "//"))
			}
		case strings.HasPrefix(t, "package "):
			return last
		case t == "":
			last = ""
		}
	}
	return ""
}
