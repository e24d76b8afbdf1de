// Package treesitter provides tree-sitter parsing for reference extraction.
//
// The CGO backend (smacker/go-tree-sitter) parses Go, Python, JavaScript
// and TypeScript. Builds without CGO get a stub backend that reports
// ErrCGODisabled, and callers fall back to pattern-based extraction.
//
// # Quick Start
//
//	backend, err := treesitter.NewBackendFromEnv()
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	parser, err := backend.NewParser(treesitter.Python)
//	if err != nil {
//	    return err
//	}
//	defer parser.Close()
//
//	tree, err := parser.Parse(ctx, src)
//	if err != nil {
//	    return err
//	}
//	defer tree.Close()
//
//	imports := treesitter.Imports(tree, treesitter.Python)
//
// # Thread Safety
//
// Backends are safe for concurrent use. Parsers should not be used
// concurrently from multiple goroutines; create one parser per goroutine.
package treesitter

import (
	"context"
	"strings"
)

// Language represents a programming language grammar that can be parsed.
type Language string

const (
	// Go represents the Go programming language.
	Go Language = "go"

	// Python represents the Python programming language.
	Python Language = "python"

	// JavaScript represents the JavaScript programming language.
	JavaScript Language = "javascript"

	// TypeScript represents the TypeScript programming language.
	TypeScript Language = "typescript"
)

// LanguageForExt maps a file extension to its grammar.
func LanguageForExt(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".go":
		return Go, true
	case ".py":
		return Python, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return JavaScript, true
	case ".ts":
		return TypeScript, true
	}
	return "", false
}

// Backend abstracts the tree-sitter implementation.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// SupportsLanguage checks if the backend can parse the given language.
	SupportsLanguage(lang Language) bool

	// NewParser creates a parser configured for the given language.
	NewParser(lang Language) (Parser, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Parser parses source code into a concrete syntax tree.
type Parser interface {
	Language() Language
	Parse(ctx context.Context, source []byte) (Tree, error)
	Close() error
}

// Tree represents a parsed syntax tree.
type Tree interface {
	RootNode() Node
	Source() []byte
	HasError() bool
	Close() error
}

// Node represents a node in the syntax tree.
type Node interface {
	// Type returns the grammar type of this node (e.g. "import_statement").
	Type() string

	// Content extracts the source text for this node.
	Content(source []byte) string

	NamedChildCount() uint32

	// NamedChild returns nil if the index is out of bounds.
	NamedChild(index uint32) Node

	// ChildByFieldName returns nil if no child has this field name.
	ChildByFieldName(name string) Node

	IsNull() bool
}

// ErrLanguageNotSupported is returned when attempting to parse a language
// that is not supported by the current backend.
type ErrLanguageNotSupported struct {
	Language Language
	Backend  string
}

func (e ErrLanguageNotSupported) Error() string {
	return "language " + string(e.Language) + " is not supported by backend " + e.Backend
}

// ErrBackendClosed is returned when attempting to use a backend after Close.
type ErrBackendClosed struct {
	Backend string
}

func (e ErrBackendClosed) Error() string {
	return "backend " + e.Backend + " has been closed"
}

// NamedChildren returns a slice of all named children of the given node.
func NamedChildren(n Node) []Node {
	if n == nil || n.IsNull() {
		return nil
	}
	count := n.NamedChildCount()
	children := make([]Node, 0, count)
	for i := uint32(0); i < count; i++ {
		if child := n.NamedChild(i); child != nil {
			children = append(children, child)
		}
	}
	return children
}

// FindByType returns every descendant of n (including n) of the given type,
// in document order.
func FindByType(n Node, typ string) []Node {
	var out []Node
	var visit func(Node)
	visit = func(cur Node) {
		if cur == nil || cur.IsNull() {
			return
		}
		if cur.Type() == typ {
			out = append(out, cur)
		}
		for _, c := range NamedChildren(cur) {
			visit(c)
		}
	}
	visit(n)
	return out
}
