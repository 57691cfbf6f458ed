// Package sanitize strips markup from member-supplied text before it is
// stored or echoed back into the chat.
package sanitize

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes all HTML, trims surrounding space and truncates to max runes.
// A max of zero or less leaves the length alone.
func Text(s string, max int) string {
	clean := strings.TrimSpace(strict.Sanitize(s))
	if max <= 0 || utf8.RuneCountInString(clean) <= max {
		return clean
	}
	return string([]rune(clean)[:max])
}
