package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelection(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		enabled []string
		mode    selectionMode
		names   []string
	}{
		{"nil", nil, selectNone, nil},
		{"none", []string{"none"}, selectNone, nil},
		{"all", []string{"all"}, selectAllTrusted, nil},
		{"all uppercase", []string{"ALL"}, selectAllTrusted, nil},
		{"all-untrusted wins", []string{"all", "all-untrusted"}, selectAll, nil},
		{"named", []string{"Kalshi_Markets", "hello-extended"}, selectNamed, []string{"kalshi-markets", "hello-extended"}},
		{"none with names", []string{"none", "demo"}, selectNamed, []string{"demo"}},
		{"invalid names dropped", []string{"../etc", " "}, selectNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := parseSelection(ctx, tt.enabled)
			assert.Equal(t, tt.mode, sel.mode)
			assert.Len(t, sel.names, len(tt.names))
			for _, n := range tt.names {
				assert.Contains(t, sel.names, n)
				assert.True(t, sel.enabled(n))
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "loaded", Outcome{Status: StatusLoaded}.String())
	assert.Equal(t, "skipped-untrusted", Outcome{Status: StatusSkippedUntrusted}.String())
	assert.Equal(t, "failed to load: toolset_load_error",
		Outcome{Status: StatusFailed, Reason: ReasonToolsetLoadError}.String())
}
