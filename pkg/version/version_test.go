package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "v1.2.3", Canonical("1.2.3"))
	assert.Equal(t, "v1.2.0", Canonical("v1.2"))
	assert.Equal(t, "", Canonical("dev"))
	assert.Equal(t, "", Canonical(""))
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		min, max string
		expected bool
	}{
		{name: "open range", host: "1.0.0", expected: true},
		{name: "above min", host: "1.5.0", min: "1.0.0", expected: true},
		{name: "below min", host: "0.9.0", min: "1.0.0", expected: false},
		{name: "at max", host: "2.0.0", max: "2.0.0", expected: true},
		{name: "above max", host: "2.0.1", max: "2.0.0", expected: false},
		{name: "dev host skips gating", host: "dev", min: "9.0.0", expected: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := Compatible(tc.host, tc.min, tc.max)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}

func TestCompatible_InvalidBound(t *testing.T) {
	_, err := Compatible("1.0.0", "not-a-version", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_version")
}

func TestGetInfo(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)

	out, err := info.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"gitCommit"`)
}
