package splitter_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/internal/pkg/vector/splitter"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// sharedOverlap 返回 prev 的后缀与 next 的前缀相同的最大长度（不超过 limit 个字符）。
func sharedOverlap(prev, next string, limit int) int {
	p, n := []rune(prev), []rune(next)
	for k := limit; k > 0; k-- {
		if k > len(p) || k > len(n) {
			continue
		}
		if string(p[len(p)-k:]) == string(n[:k]) {
			return k
		}
	}
	return 0
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "默认配置", size: splitter.DefaultChunkSize, overlap: splitter.DefaultChunkOverlap},
		{name: "无重叠", size: 100, overlap: 0},
		{name: "重叠等于块大小", size: 100, overlap: 100, wantErr: true},
		{name: "重叠大于块大小", size: 100, overlap: 150, wantErr: true},
		{name: "负重叠", size: 100, overlap: -1, wantErr: true},
		{name: "零块大小", size: 0, overlap: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := splitter.New(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, errors.ErrVectorInvalidConfig))
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, s.ChunkSize())
			assert.Equal(t, tt.overlap, s.ChunkOverlap())
		})
	}
}

func TestSplitShortTextYieldsSingleChunk(t *testing.T) {
	s, err := splitter.New(500, 20)
	require.NoError(t, err)

	text := "Vector indexes store embeddings.\n\nThey answer similarity queries."
	chunks := s.Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, 0, chunks[0].MetadataPatch[splitter.MetadataChunkIndex])
}

func TestSplitEmptyText(t *testing.T) {
	s, err := splitter.New(500, 20)
	require.NoError(t, err)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\n  "))
}

func TestSplit1200CharactersIntoThreeChunks(t *testing.T) {
	s, err := splitter.New(500, 20)
	require.NoError(t, err)

	texts := map[string]string{
		"单词":   strings.Repeat("abcdefghi ", 120),
		"无分隔符": strings.Repeat("a", 1200),
	}

	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, 1200, utf8.RuneCountInString(text))

			chunks := s.Split(text)
			require.Len(t, chunks, 3)

			for i, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 500)
				assert.Equal(t, i, c.MetadataPatch[splitter.MetadataChunkIndex])
			}
			for i := 1; i < len(chunks); i++ {
				overlap := sharedOverlap(chunks[i-1].Content, chunks[i].Content, 20)
				assert.Greater(t, overlap, 0, "chunk %d should share a tail with chunk %d", i, i-1)
				assert.LessOrEqual(t, overlap, 20)
			}
		})
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, err := splitter.New(50, 0)
	require.NoError(t, err)

	p1 := strings.Repeat("x", 40)
	p2 := strings.Repeat("y", 40)
	chunks := s.Split(p1 + "\n\n" + p2)

	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0].Content)
	assert.Equal(t, p2, chunks[1].Content)
}

// stripSpace 去除所有空白字符。
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// assertCovers 检查块按顺序覆盖源文本的全部非空白字符：每个块都是源文本的片段，
// 且每个块的起点不晚于已覆盖区域的末尾。
func assertCovers(t *testing.T, text string, chunks []splitter.Chunk) {
	t.Helper()
	src := stripSpace(text)

	covered, from := 0, 0
	for i, c := range chunks {
		part := stripSpace(c.Content)
		pos := strings.Index(src[from:], part)
		require.GreaterOrEqual(t, pos, 0, "chunk %d is not a slice of the source: %q", i, c.Content)
		pos += from

		require.LessOrEqual(t, pos, covered, "gap before chunk %d: %q", i, c.Content)
		covered = max(covered, pos+len(part))
		from = pos
	}
	assert.Equal(t, len(src), covered, "text after the last chunk is missing")
}

func TestSplitCoversAllContent(t *testing.T) {
	s, err := splitter.New(60, 10)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Sentence number %d ends here. ", i)
	}
	text := sb.String()

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	periods := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 60)
		assert.Contains(t, text, c.Content)
		assert.True(t, strings.HasSuffix(c.Content, "."), "chunk should end on a sentence: %q", c.Content)
		periods += strings.Count(c.Content, ".")
	}
	assert.GreaterOrEqual(t, periods, 30)
	assertCovers(t, text, chunks)
}

func TestSplitKeepsPunctuationAtEveryLevel(t *testing.T) {
	s, err := splitter.New(40, 5)
	require.NoError(t, err)

	var tail strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&tail, "tok-%d ", i)
	}
	text := "First paragraph, with commas; and more words here.\n\n" +
		"Second one? Yes. It has sentences! Many of them.\n" +
		"A line without a stop\n" +
		tail.String()

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 40)
	}
	assertCovers(t, text, chunks)
}

func TestSplitMultiByteCountsCharacters(t *testing.T) {
	s, err := splitter.New(10, 2)
	require.NoError(t, err)

	chunks := s.Split(strings.Repeat("向量检索", 10))
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 10)
	}
}

func TestSplitAll(t *testing.T) {
	s, err := splitter.New(500, 20)
	require.NoError(t, err)

	out := s.SplitAll([]string{"a", "", "b"})
	require.Len(t, out, 3)
	assert.Len(t, out[0], 1)
	assert.Empty(t, out[1])
	assert.Equal(t, "b", out[2][0].Content)
}

func TestWithLengthFunc(t *testing.T) {
	s, err := splitter.New(8, 0, splitter.WithLengthFunc(func(s string) int { return len(s) }))
	require.NoError(t, err)

	for _, c := range s.Split("向量向量向量") {
		assert.LessOrEqual(t, len(c.Content), 8)
	}
}
