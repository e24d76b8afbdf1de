//go:build cgo

package treesitter

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// cgoBackend implements Backend using the CGO-based smacker/go-tree-sitter library.
type cgoBackend struct {
	mu     sync.RWMutex
	closed bool
}

// NewCGOBackend creates a new CGO-based tree-sitter backend.
func NewCGOBackend() (Backend, error) {
	return &cgoBackend{}, nil
}

func (b *cgoBackend) Name() string {
	return "cgo"
}

func (b *cgoBackend) SupportsLanguage(lang Language) bool {
	_, err := sitterLanguage(lang)
	return err == nil
}

func (b *cgoBackend) NewParser(lang Language) (Parser, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil, ErrBackendClosed{Backend: b.Name()}
	}

	sitterLang, err := sitterLanguage(lang)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(sitterLang)

	return &cgoParser{
		parser: parser,
		lang:   lang,
	}, nil
}

func sitterLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case Go:
		return golang.GetLanguage(), nil
	case Python:
		return python.GetLanguage(), nil
	case JavaScript:
		return javascript.GetLanguage(), nil
	case TypeScript:
		return typescript.GetLanguage(), nil
	default:
		return nil, ErrLanguageNotSupported{Language: lang, Backend: "cgo"}
	}
}

func (b *cgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// cgoParser implements Parser using the CGO backend.
type cgoParser struct {
	mu     sync.Mutex
	parser *sitter.Parser
	lang   Language
	closed bool
}

func (p *cgoParser) Language() Language {
	return p.lang
}

func (p *cgoParser) Parse(ctx context.Context, source []byte) (Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("parser has been closed")
	}

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &cgoTree{
		tree:   tree,
		source: source,
	}, nil
}

func (p *cgoParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.parser.Close()
	return nil
}

// cgoTree implements Tree using the CGO backend.
type cgoTree struct {
	tree   *sitter.Tree
	source []byte
}

func (t *cgoTree) RootNode() Node {
	return &cgoNode{node: t.tree.RootNode()}
}

func (t *cgoTree) Source() []byte {
	return t.source
}

func (t *cgoTree) HasError() bool {
	root := t.tree.RootNode()
	if root == nil {
		return false
	}
	return root.HasError()
}

func (t *cgoTree) Close() error {
	t.tree.Close()
	return nil
}

// cgoNode implements Node using the CGO backend.
type cgoNode struct {
	node *sitter.Node
}

func (n *cgoNode) Type() string {
	if n.node == nil {
		return ""
	}
	return n.node.Type()
}

func (n *cgoNode) Content(source []byte) string {
	if n.node == nil {
		return ""
	}
	return n.node.Content(source)
}

func (n *cgoNode) NamedChildCount() uint32 {
	if n.node == nil {
		return 0
	}
	return n.node.NamedChildCount()
}

func (n *cgoNode) NamedChild(index uint32) Node {
	if n.node == nil {
		return nil
	}
	child := n.node.NamedChild(int(index))
	if child == nil {
		return nil
	}
	return &cgoNode{node: child}
}

func (n *cgoNode) ChildByFieldName(name string) Node {
	if n.node == nil {
		return nil
	}
	child := n.node.ChildByFieldName(name)
	if child == nil {
		return nil
	}
	return &cgoNode{node: child}
}

func (n *cgoNode) IsNull() bool {
	return n.node == nil || n.node.IsNull()
}
