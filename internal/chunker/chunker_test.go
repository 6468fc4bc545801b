package chunker

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func reconstruct(chunks []string, overlap int) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i == 0 {
			sb.WriteString(c)
			continue
		}
		sb.WriteString(string([]rune(c)[overlap:]))
	}
	return sb.String()
}

func randomText(r *rand.Rand, n int) string {
	alphabet := []rune("abcdefgh ijk.lmn\nopqrsé中文 ")
	out := make([]rune, n)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, tt := range tests {
		_, err := New(tt.size, tt.overlap)
		require.ErrorIs(t, err, ErrInvalidConfig, "size=%d overlap=%d", tt.size, tt.overlap)
	}
	c, err := New(10, 9)
	require.NoError(t, err)
	require.Equal(t, 10, c.Size())
	require.Equal(t, 9, c.Overlap())
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	c := MustNew(DefaultChunkSize, DefaultOverlap)
	for _, text := range []string{"", "hello", strings.Repeat("x", DefaultChunkSize)} {
		chunks := c.Chunk(text)
		require.Equal(t, []string{text}, chunks)
	}
}

func TestChunkRepeatedSentences(t *testing.T) {
	c := MustNew(1000, 200)
	text := strings.Repeat("A.", 2500)
	chunks := c.Chunk(text)

	require.Len(t, chunks, 6)
	for _, chunk := range chunks {
		require.Len(t, chunk, 1000)
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		require.Equal(t, prev[len(prev)-200:], chunks[i][:200])
	}
	require.Equal(t, text, reconstruct(chunks, 200))
}

func TestChunkPrefersLateBoundary(t *testing.T) {
	c := MustNew(100, 10)
	text := strings.Repeat("a", 70) + "." + strings.Repeat("b", 100)
	chunks := c.Chunk(text)
	require.Equal(t, strings.Repeat("a", 70)+".", chunks[0])
	require.Equal(t, text, reconstruct(chunks, 10))
}

func TestChunkIgnoresEarlyBoundary(t *testing.T) {
	c := MustNew(100, 10)
	text := strings.Repeat("a", 20) + "\n" + strings.Repeat("b", 150)
	chunks := c.Chunk(text)
	require.Len(t, []rune(chunks[0]), 100)
	require.Equal(t, text, reconstruct(chunks, 10))
}

func TestChunkCountsRunesNotBytes(t *testing.T) {
	c := MustNew(10, 2)
	text := strings.Repeat("中", 25)
	chunks := c.Chunk(text)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 10)
	}
	require.Equal(t, text, reconstruct(chunks, 2))
}

func TestChunkLargeOverlapStillTerminates(t *testing.T) {
	c := MustNew(100, 90)
	text := strings.Repeat(strings.Repeat("x", 55)+".", 20)
	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	require.Equal(t, text, reconstruct(chunks, 90))
}

func TestChunkReconstructionProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	configs := [][2]int{{1000, 200}, {50, 0}, {50, 49}, {17, 5}, {300, 150}}
	for _, cfg := range configs {
		c := MustNew(cfg[0], cfg[1])
		for i := 0; i < 50; i++ {
			text := randomText(r, r.Intn(3000))
			chunks := c.Chunk(text)
			require.NotEmpty(t, chunks)
			require.Equal(t, text, reconstruct(chunks, cfg[1]), "size=%d overlap=%d", cfg[0], cfg[1])
			for _, chunk := range chunks {
				require.LessOrEqual(t, len([]rune(chunk)), cfg[0])
			}
		}
	}
}
