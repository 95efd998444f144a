package llm

import "fmt"

// ProviderError is returned when a generation provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Retryable reports whether the failure is likely transient (rate limits,
// server-side errors). Authentication and validation failures are not.
func (e *ProviderError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}
