package coregrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		wantDur time.Duration
	}{
		{"seconds", "10S", true, 10 * time.Second},
		{"hours", "2H", true, 2 * time.Hour},
		{"millis", "500m", true, 500 * time.Millisecond},
		{"empty is no deadline", "", false, 0},
		{"missing unit", "10", false, 0},
		{"bad unit", "10X", false, 0},
		{"zero is no deadline", "0S", false, 0},
		{"negative is no deadline", "-5S", false, 0},
		{"non-digit", "abcS", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTimeout(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantDur, got.Duration)
			}
		})
	}
}

func TestParseTimeoutClampsToMax(t *testing.T) {
	got, ok := parseTimeout("999999999S")
	assert.True(t, ok)
	assert.True(t, got.Clamped)
	assert.Equal(t, time.Duration(maxTimeoutSeconds)*time.Second, got.Duration)
}

func TestParseTimeoutHugeHoursOverflowClamps(t *testing.T) {
	got, ok := parseTimeout("99999999H")
	assert.True(t, ok)
	assert.True(t, got.Clamped)
	assert.Equal(t, time.Duration(maxTimeoutSeconds)*time.Second, got.Duration)
}

func TestEncodeTimeout(t *testing.T) {
	got, err := encodeTimeout(3 * time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "3S", got)

	_, err = encodeTimeout(0)
	assert.Error(t, err)

	got, err = encodeTimeout(500 * time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "1S", got, "sub-second deadlines must never round down to 0S")
}
