package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion failure modes.
var (
	ErrFetchBlocked       = errors.New("fetch blocked by anti-automation page")
	ErrParseIncomplete    = errors.New("listing missing non-identifying fields")
	ErrExtractionFailure  = errors.New("attribute extraction failed")
	ErrPersistenceFailure = errors.New("record persistence failed")
	ErrValidationDrop     = errors.New("listing dropped: primary quantity missing")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrUnknownFilter      = errors.New("unknown filter")
	ErrEmptyResponse      = errors.New("empty response body")
)

// FetchError wraps transport errors that are not anti-automation blocks.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BlockedError reports a response recognised as a captcha, robot check or
// error page. It matches ErrFetchBlocked with errors.Is.
type BlockedError struct {
	URL        string
	Pattern    string
	StatusCode int
}

func (e *BlockedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("blocked at %s (status %d, matched %q)", e.URL, e.StatusCode, e.Pattern)
	}
	return fmt.Sprintf("blocked at %s (matched %q)", e.URL, e.Pattern)
}

func (e *BlockedError) Is(target error) bool { return target == ErrFetchBlocked }

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractionError wraps a failed call to the extraction service.
type ExtractionError struct {
	Category string
	ID       string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s/%s: %v", e.Category, e.ID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailure }

// StorageError wraps errors returned by a catalog store backend.
type StorageError struct {
	Backend string
	Op      string
	ID      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage error (%s %s %s): %v", e.Backend, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrPersistenceFailure && e.Op == "upsert"
}

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage string
	ID    string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.ID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
