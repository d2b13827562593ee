package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmer(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		interactive bool
		expected    bool
	}{
		{"yes", "yes\n", true, true},
		{"y uppercase", "Y\n", true, true},
		{"no", "n\n", true, false},
		{"empty answer defaults to no", "\n", true, false},
		{"garbage", "sure\n", true, false},
		{"eof", "", true, false},
		{"answer without newline", "y", true, true},
		{"non interactive never confirms", "yes\n", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &Confirmer{In: strings.NewReader(tt.input), Out: &out, Interactive: tt.interactive}

			assert.Equal(t, tt.expected, c.Confirm("kalshi-markets", "https://example.com/skills.git"))
			if tt.interactive {
				assert.Contains(t, out.String(), "kalshi-markets")
				assert.Contains(t, out.String(), "https://example.com/skills.git")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestConfirmer_Nil(t *testing.T) {
	var c *Confirmer
	assert.False(t, c.Confirm("a", "b"))
}
