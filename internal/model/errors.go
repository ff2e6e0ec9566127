package model

import (
	"errors"
	"fmt"
)

// Resolution-time error kinds. Match with errors.Is against a *ResolveError.
var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrNetworkFailure = errors.New("network failure")
	ErrUnsupported    = errors.New("unsupported")
)

// Download-time errors
var (
	ErrFormatUnavailable = errors.New("format unavailable")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
)

// ResolveError is returned by the metadata resolver. Kind is one of
// ErrInvalidURL, ErrNetworkFailure or ErrUnsupported.
type ResolveError struct {
	Kind error
	URL  string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func (e *ResolveError) Is(target error) bool {
	return target == e.Kind
}

// NewResolveError wraps err with a resolution kind
func NewResolveError(kind error, url string, err error) *ResolveError {
	return &ResolveError{Kind: kind, URL: url, Err: err}
}
