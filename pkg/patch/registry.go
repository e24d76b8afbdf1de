// Package patch applies patch archives to a working tree. The set of
// strategies is closed: each is registered here and selected by id.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
)

// Action is what a strategy decides for one target.
type Action int

const (
	// Write replaces or creates the target.
	Write Action = iota
	// Skip leaves the target untouched.
	Skip
)

// Target is one patch payload and the file it would land on.
type Target struct {
	Rel      string
	Path     string
	Exists   bool
	Payload  []byte
	Recorded string // hash recorded at build time, may be empty
	Digest   manifest.Digest
}

// Strategy decides how a payload is applied.
type Strategy interface {
	ID() string
	Describe() string
	Plan(t Target) (Action, error)
}

var (
	// ErrUnknownStrategy is returned for an id not in the registry.
	ErrUnknownStrategy = errors.New("unknown patch strategy")

	// ErrDigestMismatch means a payload does not match its recorded hash.
	ErrDigestMismatch = errors.New("payload digest mismatch")
)

// DefaultStrategy is used when no id is given.
const DefaultStrategy = "verify-replace"

// strategies maps ids to implementations. The order slice fixes listing
// order.
var strategies = map[string]Strategy{
	"replace":        replace{},
	"create-only":    createOnly{},
	"verify-replace": verifyReplace{},
}

var order = []string{"replace", "create-only", "verify-replace"}

// Lookup returns the strategy registered under id. An empty id selects
// DefaultStrategy.
func Lookup(id string) (Strategy, error) {
	if id == "" {
		id = DefaultStrategy
	}
	s, ok := strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownStrategy, id, strings.Join(order, ", "))
	}
	return s, nil
}

// Available returns the registered strategies in listing order.
func Available() []Strategy {
	out := make([]Strategy, 0, len(order))
	for _, id := range order {
		out = append(out, strategies[id])
	}
	return out
}

// IsAvailable checks if a strategy id is registered.
func IsAvailable(id string) bool {
	_, ok := strategies[id]
	return ok
}

type replace struct{}

func (replace) ID() string       { return "replace" }
func (replace) Describe() string { return "write every payload over its target" }

func (replace) Plan(Target) (Action, error) { return Write, nil }

type createOnly struct{}

func (createOnly) ID() string       { return "create-only" }
func (createOnly) Describe() string { return "write payloads whose target does not exist yet" }

func (createOnly) Plan(t Target) (Action, error) {
	if t.Exists {
		return Skip, nil
	}
	return Write, nil
}

type verifyReplace struct{}

func (verifyReplace) ID() string { return "verify-replace" }
func (verifyReplace) Describe() string {
	return "write payloads whose digest matches the hash recorded in the archive"
}

func (verifyReplace) Plan(t Target) (Action, error) {
	if t.Recorded == "" {
		return Skip, fmt.Errorf("%w: %s has no recorded hash", ErrDigestMismatch, t.Rel)
	}
	sum, err := t.Digest.HashBytes(t.Payload)
	if err != nil {
		return Skip, err
	}
	if sum != t.Recorded {
		return Skip, fmt.Errorf("%w: %s", ErrDigestMismatch, t.Rel)
	}
	return Write, nil
}
