package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextStripsMarkup(t *testing.T) {
	assert.Equal(t, "vote for me", Text("  <b>vote</b> for <script>alert(1)</script>me ", 0))
}

func TestTextTruncatesByRune(t *testing.T) {
	in := strings.Repeat("班", 20)
	out := Text(in, 5)
	assert.Equal(t, strings.Repeat("班", 5), out)
	assert.Equal(t, "short", Text("short", 100))
}
