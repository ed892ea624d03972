package platform

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fieldops/fieldsync/internal/errors"
)

// PlatformError carries the HTTP status of a failed external-platform call
type PlatformError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform API error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("platform API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// classify maps an HTTP response status to the engine's error taxonomy.
// Timeouts and connection failures are classified before this is reached.
func classify(statusCode int, body string) *errors.SyncError {
	perr := &PlatformError{StatusCode: statusCode, Message: body}
	switch {
	case statusCode == http.StatusUnauthorized:
		return errors.NewCredentialError("credential rejected by platform", perr)
	case statusCode == http.StatusTooManyRequests:
		return errors.NewTransientError("platform rate limit exceeded", perr)
	case statusCode >= 500:
		return errors.NewTransientError("platform server error", perr)
	default:
		return errors.NewValidationError("platform rejected request", perr)
	}
}

// RateLimitInfo holds platform rate limit state parsed from response headers
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
	// Secondary limit communicated via Retry-After
	RetryAfter time.Time
}
