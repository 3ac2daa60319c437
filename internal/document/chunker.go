package document

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxTokens 每个分块的默认token上限
	DefaultMaxTokens = 500
	// DefaultOverlapTokens 相邻分块默认重叠的token数
	DefaultOverlapTokens = 50

	// charsPerToken 估算token时每个token对应的字符数
	charsPerToken = 4
)

// ChunkOptions 分块参数
type ChunkOptions struct {
	MaxTokens     int // 分块token上限，至少为1
	OverlapTokens int // 重叠token数，至少为0
}

// DefaultChunkOptions 返回默认分块参数
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxTokens:     DefaultMaxTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

func (o ChunkOptions) clamp() ChunkOptions {
	if o.MaxTokens < 1 {
		o.MaxTokens = 1
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	return o
}

// TextChunk 分块结果
// StartChar/EndChar 是规范化文本中的字节偏移，左闭右开，用于切片；
// CharStart/CharEnd 是同一范围按字符计的偏移
type TextChunk struct {
	Content    string // 去除首尾空白后的分块文本
	Index      int    // 从0开始的连续序号
	StartChar  int
	EndChar    int
	CharStart  int
	CharEnd    int
	TokenCount int // 组成分块的句子token估算之和
}

// SentenceSpan 句子在原文中的位置
type SentenceSpan struct {
	Start      int
	End        int // 不包含
	TokenCount int
}

// EstimateTokens 估算文本的token数：字符数除以4向上取整
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// SplitSentences 按句末标点切分句子
// 句号、感叹号、问号后紧跟空白或文本结尾时视为句子结束，
// 末尾没有标点的文本单独成为最后一个句子。句子总是从非空白字符开始。
func SplitSentences(text string) []SentenceSpan {
	var spans []SentenceSpan
	start := -1

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if unicode.IsSpace(r) {
				i += size
				continue
			}
			start = i
		}
		i += size

		if isTerminal(r) && (i == len(text) || startsWithSpace(text[i:])) {
			spans = append(spans, newSpan(text, start, i))
			start = -1
		}
	}

	if start >= 0 {
		end := len(strings.TrimRightFunc(text, unicode.IsSpace))
		if end > start {
			spans = append(spans, newSpan(text, start, end))
		}
	}
	return spans
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func newSpan(text string, start, end int) SentenceSpan {
	return SentenceSpan{
		Start:      start,
		End:        end,
		TokenCount: EstimateTokens(text[start:end]),
	}
}

// Chunker 基于句子边界和token预算的分块器
type Chunker struct {
	opts ChunkOptions
}

// NewChunker 创建分块器
func NewChunker(opts ChunkOptions) *Chunker {
	return &Chunker{opts: opts.clamp()}
}

// Options 返回生效的分块参数
func (c *Chunker) Options() ChunkOptions {
	return c.opts
}

// Chunk 对文本分块
func (c *Chunker) Chunk(text string) []TextChunk {
	return Chunk(text, c.opts)
}

// Chunk 将文本切分为有重叠、按句子对齐、受token预算约束的分块
//
// 每个分块至少包含一个句子，超长句子单独成块而不会被截断。
// 一个句子只有在累计token仍严格小于 MaxTokens 时才会并入当前分块。
// 下一分块的起点由当前分块末尾向前回溯 OverlapTokens 得到，
// 回溯无法前进时直接跳到当前分块之后，保证每轮至少消耗一个句子。
func Chunk(text string, opts ChunkOptions) []TextChunk {
	opts = opts.clamp()
	chunks := []TextChunk{}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chunks
	}

	spans := SplitSentences(text)
	if len(spans) == 0 {
		start := strings.Index(text, trimmed)
		spans = []SentenceSpan{newSpan(text, start, start+len(trimmed))}
	}

	runes := runeOffsets(text, spans)

	cursor := 0
	for cursor < len(spans) {
		last := cursor
		tokens := spans[cursor].TokenCount
		for last+1 < len(spans) && tokens+spans[last+1].TokenCount < opts.MaxTokens {
			last++
			tokens += spans[last].TokenCount
		}

		start, end := spans[cursor].Start, spans[last].End
		chunks = append(chunks, TextChunk{
			Content:    strings.TrimSpace(text[start:end]),
			Index:      len(chunks),
			StartChar:  start,
			EndChar:    end,
			CharStart:  runes[cursor][0],
			CharEnd:    runes[last][1],
			TokenCount: tokens,
		})

		if last == len(spans)-1 {
			break
		}
		cursor = overlapStart(spans, cursor, last, opts)
	}

	return chunks
}

// overlapStart 计算下一分块的起始句子
func overlapStart(spans []SentenceSpan, first, last int, opts ChunkOptions) int {
	if opts.OverlapTokens == 0 || last == first {
		return last + 1
	}

	// 回溯不会越过当前分块的第一个句子
	next := last
	acc := spans[last].TokenCount
	for acc < opts.OverlapTokens && next-1 > first {
		next--
		acc += spans[next].TokenCount
	}
	return next
}

// runeOffsets 将句子的字节偏移换算为字符偏移，句子按位置递增排列
func runeOffsets(text string, spans []SentenceSpan) [][2]int {
	offsets := make([][2]int, len(spans))
	pos, count := 0, 0
	advance := func(to int) int {
		count += utf8.RuneCountInString(text[pos:to])
		pos = to
		return count
	}
	for i, s := range spans {
		offsets[i] = [2]int{advance(s.Start), advance(s.End)}
	}
	return offsets
}
