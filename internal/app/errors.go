// internal/app/errors.go
package app

import (
	"errors"
	"fmt"
)

// Upstream sources queried for a location.
const (
	SourceSweeping   = "sweeping"
	SourceRegulation = "regulation"
)

var (
	// ErrAllSourcesFailed is returned when neither upstream answered.
	ErrAllSourcesFailed = errors.New("all upstream sources failed")
	ErrInvalidRequest   = errors.New("invalid request")
)

// UpstreamError records the failure of one geodata source.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
