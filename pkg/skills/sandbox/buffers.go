package sandbox

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

// cappedBuffer keeps the first max bytes written to it and discards the
// rest. Writes always succeed so the child never blocks on a full pipe.
type cappedBuffer struct {
	max int

	mu        sync.Mutex
	buf       bytes.Buffer
	truncated bool
	total     int64
}

func newCappedBuffer(max int) *cappedBuffer {
	if max <= 0 {
		max = 1
	}
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	remain := b.max - b.buf.Len()
	if remain <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	n := len(p)
	if n > remain {
		n = remain
		b.truncated = true
	}
	_, _ = b.buf.Write(p[:n])
	return len(p), nil
}

// Bytes returns the captured prefix. A multi-byte rune split by the cap is
// dropped so truncation alone never produces invalid UTF-8.
func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.buf.Bytes()
	if b.truncated {
		out = trimIncompleteSuffix(out)
	}
	return out
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Total is the number of bytes the child wrote, including discarded ones.
func (b *cappedBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int

	mu      sync.Mutex
	buf     []byte
	dropped bool
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		b.dropped = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		copy(b.buf, b.buf[over:])
		b.buf = b.buf[:b.max]
		b.dropped = true
	}
	return len(p), nil
}

// Bytes returns the retained tail. When older output was dropped, leading
// continuation bytes of a split rune are removed.
func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := append([]byte(nil), b.buf...)
	if b.dropped {
		for len(out) > 0 && !utf8.RuneStart(out[0]) {
			out = out[1:]
		}
	}
	return out
}

func trimIncompleteSuffix(p []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		start := len(p) - i
		if !utf8.RuneStart(p[start]) {
			continue
		}
		if !utf8.FullRune(p[start:]) {
			return p[:start]
		}
		return p
	}
	return p
}
