package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLapTime(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{
			name:     "hours minutes seconds millis",
			input:    "00:01:30.500",
			expected: time.Minute + 30*time.Second + 500*time.Millisecond,
		},
		{
			name:     "no fractional seconds",
			input:    "00:01:30",
			expected: time.Minute + 30*time.Second,
		},
		{
			name:     "short fraction padded",
			input:    "00:01:30.5",
			expected: time.Minute + 30*time.Second + 500*time.Millisecond,
		},
		{
			name:     "empty string is zero",
			input:    "",
			expected: 0,
		},
		{
			name:     "malformed string is zero",
			input:    "not-a-time",
			expected: 0,
		},
		{
			name:     "garbage hour component is zero",
			input:    "xx:01:30.000",
			expected: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLapTime(tc.input))
		})
	}
}

func TestFormatLapTime(t *testing.T) {
	testCases := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{
			name:     "typical lap",
			input:    time.Minute + 30*time.Second + 500*time.Millisecond,
			expected: "00:01:30.500",
		},
		{
			name:     "negative clamps to zero",
			input:    -5 * time.Second,
			expected: "00:00:00.000",
		},
		{
			name:     "over an hour",
			input:    time.Hour + 2*time.Minute + 3*time.Second,
			expected: "01:02:03.000",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatLapTime(tc.input))
		})
	}
}

func TestParseLapTime_RoundTrip(t *testing.T) {
	d := 2*time.Hour + 15*time.Minute + 8*time.Second + 123*time.Millisecond
	assert.Equal(t, d, ParseLapTime(FormatLapTime(d)))
}
