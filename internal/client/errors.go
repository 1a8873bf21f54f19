package client

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the requested record does not exist upstream.
var ErrNotFound = errors.New("not found")

// UpstreamError wraps a transport or server-side failure from a named
// upstream service. It is never used for missing records, so callers can
// always tell "gone" from "broken".
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
