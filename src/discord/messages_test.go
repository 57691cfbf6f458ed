package discord

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	assert.Nil(t, SplitMessage("  "))
	assert.Equal(t, []string{"short"}, SplitMessage("short"))

	para := strings.Repeat("word ", 300)
	chunks := SplitMessage(para + "\n\n" + para + "\n\n" + strings.Repeat("x", 4000))
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), SafeChunkLen)
		assert.NotEmpty(t, c)
	}
}

func TestWrapURLsNoEmbed(t *testing.T) {
	assert.Equal(t, "see <https://example.com/a>.", WrapURLsNoEmbed("see https://example.com/a."))
	assert.Equal(t, "kept <https://example.com>", WrapURLsNoEmbed("kept <https://example.com>"))
	assert.Equal(t, "no links", WrapURLsNoEmbed("no links"))
}

func TestFormatStyledBlock(t *testing.T) {
	block := FormatStyledBlock("Election #3", "- Cohort 7: <@1>\n- Cohort 8: nobody")
	assert.True(t, strings.HasPrefix(block, "```ansi\n╭"))
	assert.Contains(t, block, "Election #3")
	assert.Contains(t, block, "• Cohort 7")

	long := FormatStyledBlock("Big", strings.Repeat("line of text\n", 200))
	assert.True(t, strings.HasPrefix(long, "**Big**"))
}
