package client

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by a Client matches exactly one of
// these (or ratelimit.ErrInvalidProvider, or a context error) via errors.Is.
var (
	ErrTransport       = errors.New("transport failure")
	ErrStatus          = errors.New("unexpected response status")
	ErrCacheIO         = errors.New("cache i/o failure")
	ErrEncode          = errors.New("request encoding failure")
	ErrDecode          = errors.New("malformed response")
	ErrPatternNotFound = errors.New("pattern not found")
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
}

// Is makes errors.Is(err, ErrStatus) hold for any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}
