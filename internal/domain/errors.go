package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by read paths when a record does not exist.
var ErrNotFound = errors.New("not found")

// FetchError marks a transport-level failure (network, timeout, bad status).
// Recoverable: the record stays eligible for the next cycle.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError marks an unexpected page or JSON shape.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %s", e.URL, e.Reason) }

// NotFoundError marks a resource confirmed gone at the source. Terminal: the
// source record stops being retried.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("gone: %s", e.URL) }

// EnrichmentError marks a failed model call or unusable model output.
// Recoverable: the item keeps its structured facts.
type EnrichmentError struct {
	URL string
	Err error
}

func (e *EnrichmentError) Error() string { return fmt.Sprintf("enrich %s: %v", e.URL, e.Err) }
func (e *EnrichmentError) Unwrap() error { return e.Err }

// DedupConflictError marks two references from different sites normalizing to
// the same canonical URL. First wins; the conflict is logged, not fatal.
type DedupConflictError struct {
	URL         string
	First, Next Site
}

func (e *DedupConflictError) Error() string {
	return fmt.Sprintf("dedup conflict on %s: %s vs %s", e.URL, e.First, e.Next)
}

// ErrClass buckets an error for storage and metrics labels.
func ErrClass(err error) string {
	var fe *FetchError
	var pe *ParseError
	var nf *NotFoundError
	var ee *EnrichmentError
	switch {
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &ee):
		return "enrichment"
	default:
		return "other"
	}
}
