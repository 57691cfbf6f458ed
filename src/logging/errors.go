package logging

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsRateLimit reports whether err looks like an upstream rate limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "too many requests")
}

// IsTransient reports whether retrying err might succeed: rate limits,
// timeouts and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimit(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, code := range []string{"HTTP 500", "HTTP 502", "HTTP 503", "HTTP 504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
