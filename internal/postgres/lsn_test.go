package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLSNOrZero_ValidPositions(t *testing.T) {
	testCases := []struct {
		input    string
		expected LSN
	}{
		{"0/0", 0},
		{"0/10", 0x10},
		{"0/1000000", 0x1000000},
		{"1/0", 1 << 32},
		{"16/B374D848", (0x16 << 32) + 0xB374D848},
		{"ff/ff", (0xFF << 32) + 0xFF},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ParseLSNOrZero(tc.input), "input: %s", tc.input)
	}
}

func TestParseLSNOrZero_IsMonotonic(t *testing.T) {
	ordered := []string{"0/0", "0/10", "0/1000000", "1/0", "1/1", "16/B374D848"}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ParseLSNOrZero(ordered[i-1]), ParseLSNOrZero(ordered[i]),
			"%s should order below %s", ordered[i-1], ordered[i])
	}
}

func TestParseLSNOrZero_MalformedInputDegradesToZero(t *testing.T) {
	malformed := []string{"", "1000000", "0/XYZ", "not-an-lsn", "/", "/10"}
	for _, input := range malformed {
		assert.Equal(t, LSN(0), ParseLSNOrZero(input), "input: %q", input)
	}
}

func TestParseLSN_MalformedInputFails(t *testing.T) {
	for _, input := range []string{"", "1000000", "0/XYZ"} {
		_, err := ParseLSN(input)
		assert.Error(t, err, "input: %q", input)
	}
}

func TestDelta(t *testing.T) {
	testCases := []struct {
		name     string
		current  string
		previous string
		expected uint64
	}{
		{"no baseline yet", "0/2000000", "", 0},
		{"null baseline from old state files", "0/2000000", "null", 0},
		{"forward growth", "0/1100000", "0/1000000", 0x100000},
		{"growth across the high word", "1/10", "0/FFFFFFF0", 0x20},
		{"idle database", "0/1000000", "0/1000000", 0},
		{"apparent regression yields zero", "0/1000000", "0/2000000", 0},
		{"malformed current yields zero", "garbage", "0/1000000", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Delta(tc.current, tc.previous))
		})
	}
}

func TestDelta_NeverNegative(t *testing.T) {
	positions := []string{"", "null", "0/0", "0/1000000", "1/0", "garbage"}
	for _, current := range positions {
		for _, previous := range positions {
			assert.GreaterOrEqual(t, Delta(current, previous), uint64(0))
		}
	}
}
