// Package ledger persists the monotonically increasing version marker and
// the runnable-version pointer.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a release identifier: a prefix followed by a zero-padded
// counter (v0001). The zero value of N renders as v0000, meaning no
// version has been cut yet.
type Version struct {
	Prefix string
	Width  int
	N      int
}

// String renders the version, e.g. "v0042".
func (v Version) String() string {
	prefix := v.Prefix
	if prefix == "" {
		prefix = "v"
	}
	width := v.Width
	if width <= 0 {
		width = 4
	}
	return fmt.Sprintf("%s%0*d", prefix, width, v.N)
}

// IsZero reports whether no version has been cut yet.
func (v Version) IsZero() bool { return v.N == 0 }

// Next returns the following version.
func (v Version) Next() Version {
	v.N++
	return v
}

// Less reports whether v sorts before o numerically.
func (v Version) Less(o Version) bool { return v.N < o.N }

// ParseError reports a persisted version marker that could not be parsed.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed version marker %q", e.Raw)
}

// Parse parses s as prefix followed by decimal digits. Surrounding
// whitespace is ignored; trailing non-digit text after the counter is
// tolerated.
func Parse(s, prefix string, width int) (Version, error) {
	v := Version{Prefix: prefix, Width: width}
	raw := strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(raw, prefix)
	if !ok {
		return v, &ParseError{Raw: raw}
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return v, &ParseError{Raw: raw}
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return v, &ParseError{Raw: raw}
	}
	v.N = n
	return v, nil
}
