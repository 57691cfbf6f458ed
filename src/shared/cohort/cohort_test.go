package cohort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"7":             "7",
		"07":            "7",
		" Class 7 ":     "7",
		"cohort #12":    "12",
		"７":             "7",
		"７班":            "7",
		"七班":            "7",
		"第十二期":          "12",
		"十":             "10",
		"二十":            "20",
		"二十三":           "23",
		"一百零五":          "105",
		"class seven":   "7",
		"Twenty-One":    "21",
		"ninety nine":   "99",
		"group eleven":  "11",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "class", "0", "1000", "7 and 8", "七七", "twenty-zero", "blue", "seven eight nine"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, ErrUnresolvable, in)
	}
}
