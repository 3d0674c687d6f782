// Package splitter 实现递归字符切分器，将长文本切分为带重叠的文本块。
//
// 切分优先在段落边界进行，其次是行、句子、单词，最后退化为按字符硬切分。
// 分隔符保留在其前一个片段的末尾，块只去除首尾空白，不丢失其他字符。
// 长度以字符（rune）计算。
package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

const (
	// DefaultChunkSize 默认块大小（字符数）。
	DefaultChunkSize = 500
	// DefaultChunkOverlap 默认相邻块重叠大小（字符数）。
	DefaultChunkOverlap = 20

	// MetadataChunkIndex 是块在源文本中的序号对应的元数据键。
	MetadataChunkIndex = "chunk_index"
)

// DefaultSeparators 按优先级排列的分隔符，空串表示按字符切分。
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk 表示切分后的一个文本块。
type Chunk struct {
	// Content 块文本
	Content string
	// MetadataPatch 需要合并到源元数据中的附加字段
	MetadataPatch map[string]any
}

// Splitter 递归字符切分器。创建后只读，可并发使用。
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	lengthFunc   func(string) int
}

// Option 配置切分器的函数选项。
type Option func(*Splitter)

// WithSeparators 替换默认分隔符列表。
// 列表不以空串结尾时，超长且无法再切分的片段会原样保留。
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		if len(separators) > 0 {
			s.separators = separators
		}
	}
}

// WithLengthFunc 替换长度计算函数，默认按字符数计算。
func WithLengthFunc(fn func(string) int) Option {
	return func(s *Splitter) {
		if fn != nil {
			s.lengthFunc = fn
		}
	}
}

// New 创建切分器。chunkOverlap 必须小于 chunkSize。
func New(chunkSize, chunkOverlap int, opts ...Option) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.ErrVectorInvalidConfig.WithMessagef("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, errors.ErrVectorInvalidConfig.WithMessagef("chunk overlap must not be negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, errors.ErrVectorInvalidConfig.WithMessagef(
			"chunk overlap (%d) must be smaller than chunk size (%d)", chunkOverlap, chunkSize)
	}

	s := &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
		lengthFunc:   utf8.RuneCountInString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ChunkSize 返回块大小。
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap 返回重叠大小。
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split 将文本切分为块。空白文本返回 nil；不超过块大小的文本返回单个块。
func (s *Splitter) Split(text string) []Chunk {
	var pieces []string
	if s.lengthFunc(text) <= s.chunkSize {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pieces = []string{trimmed}
		}
	} else {
		pieces = s.splitText(text, s.separators)
	}

	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			Content:       p,
			MetadataPatch: map[string]any{MetadataChunkIndex: i},
		}
	}
	return chunks
}

// SplitAll 依次切分多个文本，结果与输入一一对应。
func (s *Splitter) SplitAll(texts []string) [][]Chunk {
	out := make([][]Chunk, len(texts))
	for i, text := range texts {
		out[i] = s.Split(text)
	}
	return out
}

func (s *Splitter) splitText(text string, separators []string) []string {
	var (
		final     []string
		separator = separators[len(separators)-1]
		next      []string
	)

	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitBy(text, separator) {
		if s.lengthFunc(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				final = append(final, trimmed)
			}
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}

	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// mergeSplits 贪心合并小片段；输出一个块后保留不超过 chunkOverlap 的尾部片段作为下一块的开头。
// 片段已带有分隔符，直接拼接即可还原原文。
func (s *Splitter) mergeSplits(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)

	for _, d := range splits {
		l := s.lengthFunc(d)

		if total+l > s.chunkSize && len(current) > 0 {
			if doc := joinDocs(current); doc != "" {
				docs = append(docs, doc)
			}

			for total > s.chunkOverlap || (total+l > s.chunkSize && total > 0) {
				total -= s.lengthFunc(current[0])
				current = current[1:]
			}
		}

		current = append(current, d)
		total += l
	}

	if doc := joinDocs(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitBy 按分隔符切分，分隔符留在前一个片段末尾；空分隔符按字符切分。
func splitBy(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}

	for _, p := range strings.SplitAfter(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinDocs(docs []string) string {
	return strings.TrimSpace(strings.Join(docs, ""))
}
