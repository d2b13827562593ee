package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"kalshi-markets", "kalshi-markets"},
		{"Kalshi-Markets", "kalshi-markets"},
		{"kalshi_markets", "kalshi-markets"},
		{"KALSHI_MARKETS", "kalshi-markets"},
		{"hello-extended", "hello-extended"},
		{strings.Repeat("a", 64), strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeName(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeName_Rejects(t *testing.T) {
	inputs := []string{
		"",
		".",
		"..",
		"~",
		"__pycache__",
		"__PYCACHE__",
		"--pycache--",
		"../etc",
		"a/../b",
		"a/b",
		`a\b`,
		"/etc/passwd",
		"/abs",
		".hidden",
		"~root",
		"home~",
		"with space",
		"semi;colon",
		"nul\x00byte",
		"ünïcode",
		strings.Repeat("a", 65),
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			_, err := NormalizeName(raw)
			require.Error(t, err)
			assert.Equal(t, KindInvalidName, KindOf(err))

			_, err = NormalizeScriptName(raw)
			require.Error(t, err)
			assert.Equal(t, KindInvalidName, KindOf(err))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	for _, raw := range []string{"Kalshi-Markets", "kalshi_markets", "A_b_C", "status"} {
		once, err := NormalizeName(raw)
		require.NoError(t, err)
		twice, err := NormalizeName(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, raw)
	}

	for _, raw := range []string{"Kalshi-Markets", "x.y", "status", "status.py", "Run_Me.SH"} {
		script, err := NormalizeScriptName(raw)
		require.NoError(t, err)
		again, err := NormalizeScriptName(script)
		require.NoError(t, err)
		assert.Equal(t, script, again, raw)
	}
}

func TestNormalizeName_RejectsDots(t *testing.T) {
	for _, raw := range []string{"foo.bar", "v1.2", "status.py"} {
		_, err := NormalizeName(raw)
		require.Error(t, err, raw)
		assert.Equal(t, KindInvalidName, KindOf(err))
		assert.Contains(t, err.Error(), "'.'")

		_, err = NormalizeScriptName(raw)
		assert.NoError(t, err, raw)
	}
}

func TestNormalizeScriptName(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"status", "status.py"},
		{"status.py", "status.py"},
		{"Status.PY", "status.py"},
		{"advanced_greeting", "advanced-greeting.py"},
		{"advanced_greeting.py", "advanced-greeting.py"},
		{"deploy.sh", "deploy.sh"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeScriptName(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeScriptName_ExtensionPushesOverLimit(t *testing.T) {
	_, err := NormalizeScriptName(strings.Repeat("s", 62))
	assert.Equal(t, KindInvalidName, KindOf(err))
}

func TestEquivalentSkillNames(t *testing.T) {
	a, err := NormalizeName("Kalshi-Markets")
	require.NoError(t, err)
	b, err := NormalizeName("kalshi_markets")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
