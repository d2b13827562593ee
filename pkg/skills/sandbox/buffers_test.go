package sandbox

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.Truncated())

	n, err = b.Write([]byte("defgh"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, b.Truncated())
	assert.Equal(t, "abcde", string(b.Bytes()))
	assert.EqualValues(t, 8, b.Total())

	n, _ = b.Write([]byte("more"))
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", string(b.Bytes()))
}

func TestCappedBuffer_SplitRune(t *testing.T) {
	b := newCappedBuffer(4)
	_, _ = b.Write([]byte("ab€"))
	assert.True(t, b.Truncated())
	assert.Equal(t, "ab", string(b.Bytes()))
	assert.True(t, utf8.Valid(b.Bytes()))
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "ab", string(b.Bytes()))
	_, _ = b.Write([]byte("cdef"))
	assert.Equal(t, "cdef", string(b.Bytes()))
	_, _ = b.Write([]byte("g"))
	assert.Equal(t, "defg", string(b.Bytes()))
	_, _ = b.Write([]byte(strings.Repeat("z", 10)))
	assert.Equal(t, "zzzz", string(b.Bytes()))
}

func TestTailBuffer_SplitRune(t *testing.T) {
	b := newTailBuffer(3)
	_, _ = b.Write([]byte("x€y"))
	// the last three bytes are the tail of the euro sign and 'y'
	assert.Equal(t, "y", string(b.Bytes()))
}
