package treesitter

import (
	"fmt"
	"os"
	"strings"
)

// BackendType identifies a specific tree-sitter backend implementation.
type BackendType string

const (
	// BackendAuto selects the CGO backend when it is compiled in.
	BackendAuto BackendType = "auto"

	// BackendCGO uses the CGO-based backend (smacker/go-tree-sitter).
	BackendCGO BackendType = "cgo"
)

// EnvVarBackend is the environment variable used to select the backend.
const EnvVarBackend = "CONVERGE_TREESITTER_BACKEND"

// NewBackend creates a backend of the specified type.
func NewBackend(typ BackendType) (Backend, error) {
	switch typ {
	case BackendCGO, BackendAuto:
		return NewCGOBackend()
	default:
		return nil, fmt.Errorf("unknown backend type: %s", typ)
	}
}

// NewBackendFromEnv creates a backend based on CONVERGE_TREESITTER_BACKEND,
// defaulting to BackendAuto.
func NewBackendFromEnv() (Backend, error) {
	envVal := strings.TrimSpace(os.Getenv(EnvVarBackend))
	if envVal == "" {
		return NewBackend(BackendAuto)
	}

	typ := BackendType(strings.ToLower(envVal))
	switch typ {
	case BackendAuto, BackendCGO:
		return NewBackend(typ)
	default:
		return nil, fmt.Errorf("invalid %s value %q: must be one of auto, cgo", EnvVarBackend, envVal)
	}
}

// Available reports whether a working backend is compiled in.
func Available() bool {
	b, err := NewBackend(BackendAuto)
	if err != nil {
		return false
	}
	_ = b.Close()
	return true
}
