package service

import (
	"strings"

	"github.com/prospectly/assignment-engine/internal/outreach"
)

// transientMarkers are error-text fragments that indicate a failure worth
// retrying on a later run instead of disqualifying the contact.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"status=429",
	"status=502",
	"status=503",
	"status=504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"connection reset",
	"connection refused",
	"temporarily",
	"econnreset",
}

// resumableMarkers are error-text fragments of batch-level failures caused by
// the host cutting the run short. Such batches stay resumable instead of
// being marked failed.
var resumableMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"context canceled",
	"execution time limit",
	"function invocation",
	"statement timeout",
}

// isTransientError classifies a per-candidate failure. The typed outreach
// classification wins when available; untyped errors fall back to text
// matching.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if outreach.IsTransient(err) {
		return true
	}
	return matchesAny(err.Error(), transientMarkers)
}

// isResumableError reports whether a batch-level failure looks like the run
// was cut off rather than broken.
func isResumableError(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(err.Error(), resumableMarkers)
}

// isCapacityError reports whether an enrollment failure names the platform's
// hard lead cap.
func isCapacityError(err error) bool {
	if err == nil {
		return false
	}
	return outreach.IsCapacityLimit(err.Error())
}

func matchesAny(message string, markers []string) bool {
	lowered := strings.ToLower(message)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
