package timeframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinutes(t *testing.T) {
	cases := map[string]int{
		"15M":      15,
		"1H":       60,
		"4H":       240,
		"1D":       1440,
		"2W":       20160,
		"5m":       5,
		"4 hours":  240,
		"1 day":    1440,
		"":         DefaultMinutes,
		"garbage":  DefaultMinutes,
		"0M":       DefaultMinutes,
		"15X":      DefaultMinutes,
		" 30 min ": 30,
	}
	for in, want := range cases {
		assert.Equal(t, want, Minutes(in), "label %q", in)
	}
}

func TestMode(t *testing.T) {
	assert.Equal(t, ModeScalp, Mode("15M"))
	assert.Equal(t, ModeSwing, Mode("16M"))
	assert.Equal(t, ModeSwing, Mode("1H"))
	assert.Equal(t, ModeScalp, Mode("5m"))
	assert.Equal(t, ModeSwing, Mode("unknown"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1H", Normalize("1h"))
	assert.Equal(t, "4H", Normalize("4 hours"))
	assert.Equal(t, "2D", Normalize("2 days"))
	assert.Equal(t, "1W", Normalize("1 week"))
	assert.Equal(t, "15M", Normalize("15 minutes"))
	assert.Equal(t, "WEIRD", Normalize("weird"))
	assert.Equal(t, "", Normalize("  "))
}
