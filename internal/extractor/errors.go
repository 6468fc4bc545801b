package extractor

import (
	"fmt"
)

// FetchError reports a network failure or a non-2xx response while fetching a URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return "Unsupported file format: " + e.Ext
}

// ExtractionError wraps every extraction failure so callers can record a
// single message regardless of the source kind.
type ExtractionError struct {
	Kind   string
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("Error processing %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func wrap(kind, source string, err error) error {
	if err == nil {
		return nil
	}
	return &ExtractionError{Kind: kind, Source: source, Err: err}
}
