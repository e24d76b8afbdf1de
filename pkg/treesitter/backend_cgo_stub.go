//go:build !cgo

package treesitter

import "errors"

// ErrCGODisabled is returned when the CGO backend is requested but CGO is disabled.
var ErrCGODisabled = errors.New("tree-sitter backend is not available: build with CGO_ENABLED=1")

// NewCGOBackend returns an error when CGO is not available.
func NewCGOBackend() (Backend, error) {
	return nil, ErrCGODisabled
}
