package logging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimit(t *testing.T) {
	assert.False(t, IsRateLimit(nil))
	assert.True(t, IsRateLimit(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, IsRateLimit(errors.New("rate_limit exceeded")))
	assert.False(t, IsRateLimit(errors.New("HTTP 403 Forbidden")))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("grant: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(errors.New("HTTP 502 Bad Gateway, {}")))
	assert.False(t, IsTransient(errors.New("HTTP 404 Not Found")))
}
