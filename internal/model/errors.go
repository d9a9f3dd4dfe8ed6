package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned when a document cannot be resolved to
	// samples plus a sample rate.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedMatch is returned when a chunk match lacks a required field.
	ErrMalformedMatch = errors.New("malformed match")
)

// InvalidInputError describes why one document was rejected.
type InvalidInputError struct {
	DocID  string
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	var b strings.Builder
	b.WriteString("invalid input")
	if e.DocID != "" {
		fmt.Fprintf(&b, " (doc %s)", e.DocID)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InvalidInputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// MalformedMatchError reports a chunk match that is missing Field.
type MalformedMatchError struct {
	Index int
	Field string
}

func (e *MalformedMatchError) Error() string {
	return fmt.Sprintf("malformed match at index %d: missing %s", e.Index, e.Field)
}

func (e *MalformedMatchError) Unwrap() error {
	return ErrMalformedMatch
}

// ItemError is the failure of a single batch item.
type ItemError struct {
	Index int
	DocID string
	Err   error
}

func (e ItemError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("item %d (%s): %v", e.Index, e.DocID, e.Err)
	}
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchError collects per-item failures. Items that are not listed were
// processed normally.
type BatchError struct {
	Items []ItemError
}

func (e *BatchError) Error() string {
	if len(e.Items) == 1 {
		return e.Items[0].Error()
	}
	parts := make([]string, len(e.Items))
	for i, it := range e.Items {
		parts[i] = it.Error()
	}
	return fmt.Sprintf("%d items failed: %s", len(e.Items), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i, it := range e.Items {
		errs[i] = it
	}
	return errs
}

// Failed returns the error recorded for item index, or nil.
func (e *BatchError) Failed(index int) error {
	if e == nil {
		return nil
	}
	for _, it := range e.Items {
		if it.Index == index {
			return it.Err
		}
	}
	return nil
}
