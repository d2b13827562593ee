package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvPolicy_Build(t *testing.T) {
	host := []string{"PATH=/bin", "HOME=/home/u", "API_KEY=secret", "MYSKILL_MODE=fast", "MYSKILL_USER=ann", "BROKEN"}
	p := newEnvPolicy(context.Background(), []string{"PATH", "HOME", "LANG"}, []string{"MYSKILL_*", "[invalid"})

	env, err := p.build(host, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"HOME=/home/u", "MYSKILL_MODE=fast", "MYSKILL_USER=ann", "PATH=/bin"}, env)

	env, err = p.build(host, map[string]string{"MYSKILL_MODE": "slow"})
	require.NoError(t, err)
	assert.Contains(t, env, "MYSKILL_MODE=slow")

	_, err = p.build(host, map[string]string{"API_KEY": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestEnvPolicy_NoPatterns(t *testing.T) {
	p := newEnvPolicy(context.Background(), []string{"PATH"}, nil)
	env, err := p.build([]string{"PATH=/bin", "FOO=bar"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=/bin"}, env)
	assert.False(t, p.allowed("FOO"))
}
