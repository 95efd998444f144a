package assist

import (
	"fmt"
	"time"
)

// InvalidParametersError reports missing or malformed action input. It maps
// to a 4xx response on the HTTP surface.
type InvalidParametersError struct {
	Param  string
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// GenerationTimeoutError reports that a generation or tool round-trip
// exceeded the configured bound.
type GenerationTimeoutError struct {
	Timeout time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation exceeded %s timeout", e.Timeout)
}
