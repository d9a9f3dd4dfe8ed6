package model

import (
	"fmt"
	"strings"
)

// Traversal selects which level of a batch an operation applies to.
type Traversal int

const (
	// TraversalUnset defers to the configured default.
	TraversalUnset Traversal = iota
	// TraversalRoot processes the top-level documents.
	TraversalRoot
	// TraversalChunks processes chunks that were already produced.
	TraversalChunks
)

func (t Traversal) String() string {
	switch t {
	case TraversalRoot:
		return "root"
	case TraversalChunks:
		return "chunks"
	default:
		return "unset"
	}
}

// ParseTraversal accepts both the short path selectors ("@r", "@c") and the
// long names.
func ParseTraversal(s string) (Traversal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TraversalUnset, nil
	case "r", "@r", "root":
		return TraversalRoot, nil
	case "c", "@c", "chunks":
		return TraversalChunks, nil
	default:
		return TraversalUnset, fmt.Errorf("%w: unknown traversal %q", ErrInvalidInput, s)
	}
}

// Or returns t, or def when t is unset.
func (t Traversal) Or(def Traversal) Traversal {
	if t == TraversalUnset {
		return def
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t Traversal) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Traversal) UnmarshalText(b []byte) error {
	v, err := ParseTraversal(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
