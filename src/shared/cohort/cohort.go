// Package cohort turns the free-form cohort labels found on member profiles
// ("7", "Class 07", "７班", "第十二期", "class twelve") into canonical decimal
// numerals. Nothing else in the engine parses labels.
package cohort

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// MaxCohort bounds the numeral so codes stay short.
const MaxCohort = 999

// ErrUnresolvable is returned when a label carries no usable numeral.
var ErrUnresolvable = errors.New("cohort: unresolvable label")

var affixes = []string{"cohort", "class", "group", "no.", "no", "#", "第", "班", "期", "届", "级", "組", "组"}

var englishUnits = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
	"seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var englishTens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var hanDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '兩': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// Normalize returns the canonical numeral for label.
func Normalize(label string) (string, error) {
	s := strings.ToLower(width.Narrow.String(strings.TrimSpace(label)))
	for _, a := range affixes {
		s = strings.ReplaceAll(s, a, " ")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrUnresolvable
	}

	n, ok := parseDigits(s)
	if !ok {
		n, ok = parseHan(s)
	}
	if !ok {
		n, ok = parseEnglish(s)
	}
	if !ok || n <= 0 || n > MaxCohort {
		return "", ErrUnresolvable
	}
	return strconv.Itoa(n), nil
}

// parseDigits accepts a label whose only numeral is a single run of ASCII
// digits.
func parseDigits(s string) (int, bool) {
	var runs []string
	var cur strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	if len(runs) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(runs[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseHan reads Chinese numerals up to the hundreds: 七, 十二, 二十, 一百零五.
func parseHan(s string) (int, bool) {
	var runes []rune
	for _, r := range s {
		if _, ok := hanDigits[r]; ok || r == '十' || r == '百' {
			runes = append(runes, r)
		} else if !unicode.IsSpace(r) {
			return 0, false
		}
	}
	if len(runes) == 0 {
		return 0, false
	}

	total, pending := 0, -1
	for _, r := range runes {
		switch r {
		case '百':
			if pending < 0 {
				pending = 1
			}
			total += pending * 100
			pending = -1
		case '十':
			if pending < 0 {
				pending = 1
			}
			total += pending * 10
			pending = -1
		default:
			if pending > 0 {
				// two bare digits in a row ("七七") are not a numeral
				return 0, false
			}
			pending = hanDigits[r]
		}
	}
	if pending > 0 {
		total += pending
	}
	return total, true
}

// parseEnglish reads number words up to ninety-nine.
func parseEnglish(s string) (int, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == ' ' || r == '_'
	})
	if len(fields) == 0 || len(fields) > 2 {
		return 0, false
	}
	if len(fields) == 1 {
		if n, ok := englishUnits[fields[0]]; ok {
			return n, true
		}
		n, ok := englishTens[fields[0]]
		return n, ok
	}
	tens, ok := englishTens[fields[0]]
	if !ok {
		return 0, false
	}
	unit, ok := englishUnits[fields[1]]
	if !ok || unit == 0 || unit > 9 {
		return 0, false
	}
	return tens + unit, true
}
