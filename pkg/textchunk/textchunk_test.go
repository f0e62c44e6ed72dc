package textchunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortInputSingleChunk(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Split("hello", 100))
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Equal(t, []string{""}, Split("", 100))
}

func TestSplitKeepsLinesWhole(t *testing.T) {
	in := "aaaa\nbbbb\ncccc"
	chunks := Split(in, 9)
	require.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)
}

func TestSplitHardSplitsOversizeLine(t *testing.T) {
	in := strings.Repeat("x", 25)
	chunks := Split(in, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 10), chunks[1])
	assert.Equal(t, strings.Repeat("x", 5), chunks[2])
}

func TestSplitEveryChunkUnderLimit(t *testing.T) {
	in := strings.Repeat("some words here\n", 500)
	for _, c := range Split(in, 120) {
		assert.LessOrEqual(t, len(c), 120)
	}
}

func TestSplitPreservesContent(t *testing.T) {
	in := "first line\nsecond line that is a bit longer\nthird"
	chunks := Split(in, 16)
	joined := strings.Join(chunks, "\n")
	// Word content survives chunking, only newline placement may change.
	for _, w := range strings.Fields(in) {
		assert.Contains(t, joined, w)
	}
}

func TestSplitRespectsRuneBoundaries(t *testing.T) {
	in := strings.Repeat("ñ", 30) // 2 bytes each
	for _, c := range Split(in, 11) {
		assert.True(t, len(c) <= 11)
		assert.True(t, strings.Count(c, "�") == 0)
		for _, r := range c {
			assert.Equal(t, 'ñ', r)
		}
	}
}
