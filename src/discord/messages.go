package discord

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxDiscordMessageLen = 2000
	SafeChunkLen         = 1900

	boxInnerWidth = 60
	boxPadding    = 1
)

// SplitMessage breaks text into Discord-sized chunks on paragraph, then
// line, then word boundaries.
func SplitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= SafeChunkLen {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	add := func(piece, sep string) {
		if current.Len() > 0 && current.Len()+len(sep)+len(piece) > SafeChunkLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if len(paragraph) <= SafeChunkLen {
			add(paragraph, "\n\n")
			continue
		}
		for _, line := range strings.Split(paragraph, "\n") {
			if len(line) <= SafeChunkLen {
				add(line, "\n")
				continue
			}
			for _, word := range splitLongLine(line) {
				add(word, " ")
			}
		}
	}
	flush()
	return chunks
}

func splitLongLine(line string) []string {
	var out []string
	for _, word := range strings.Fields(line) {
		for len(word) > SafeChunkLen {
			cut := SafeChunkLen
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			out = append(out, word[:cut])
			word = word[cut:]
		}
		out = append(out, word)
	}
	return out
}

var newlineCollapse = regexp.MustCompile(`\n{3,}`)

// BeautifyForDiscord normalises line endings and list bullets.
func BeautifyForDiscord(text string) string {
	if text == "" {
		return text
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = newlineCollapse.ReplaceAllString(normalized, "\n\n")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- "):
			lines[i] = strings.Replace(line, "- ", "• ", 1)
		case strings.HasPrefix(trimmed, "* "):
			lines[i] = strings.Replace(line, "* ", "• ", 1)
		}
	}

	return WrapURLsNoEmbed(strings.TrimSpace(strings.Join(lines, "\n")))
}

// FormatStyledBlock renders a titled box inside an ANSI code block. Text
// that will not fit a single message is returned plain instead.
func FormatStyledBlock(title, body string) string {
	cleaned := BeautifyForDiscord(strings.TrimSpace(body))
	if cleaned == "" {
		cleaned = "_No content_"
	}
	block := wrapBoxLines(renderBox(title, cleaned))
	if len(block) <= MaxDiscordMessageLen {
		return block
	}
	if title != "" {
		return fmt.Sprintf("**%s**\n%s", title, cleaned)
	}
	return cleaned
}

func renderBox(title, body string) []string {
	innerWidth := boxInnerWidth + boxPadding*2
	border := strings.Repeat("─", innerWidth+2)

	lines := []string{"╭" + border + "╮"}
	if t := strings.TrimSpace(title); t != "" {
		lines = append(lines, formatBoxLine(t), "├"+border+"┤")
	}
	for _, raw := range strings.Split(body, "\n") {
		raw = strings.TrimRight(raw, " ")
		if raw == "" {
			lines = append(lines, formatBoxLine(""))
			continue
		}
		for _, l := range wrapLine(raw, boxInnerWidth) {
			lines = append(lines, formatBoxLine(l))
		}
	}
	return append(lines, "╰"+border+"╯")
}

func wrapBoxLines(lines []string) string {
	return fmt.Sprintf("```ansi\n%s\n```", strings.Join(lines, "\n"))
}

func formatBoxLine(content string) string {
	pad := strings.Repeat(" ", boxPadding)
	return fmt.Sprintf("│ %s%s%s │", pad, padRight(content, boxInnerWidth), pad)
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var current strings.Builder
	for _, word := range words {
		for runeLen(word) > width {
			if current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
			r := []rune(word)
			lines = append(lines, string(r[:width]))
			word = string(r[width:])
		}
		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case runeLen(current.String())+1+runeLen(word) > width:
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
		default:
			current.WriteByte(' ')
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

func padRight(text string, width int) string {
	n := runeLen(text)
	if n >= width {
		return string([]rune(text)[:width])
	}
	return text + strings.Repeat(" ", width-n)
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}
