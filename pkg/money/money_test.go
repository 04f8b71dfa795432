package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "20.00", FormatCents(2000))
	assert.Equal(t, "15.05", FormatCents(1505))
	assert.Equal(t, "-3.10", FormatCents(-310))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]int64{
		"20":    2000,
		"15.5":  1550,
		"0.01":  1,
		" 7.25": 725,
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, input := range []string{"", "abc", "1.005"} {
		_, err := ParseAmount(input)
		assert.Error(t, err, input)
	}
}
