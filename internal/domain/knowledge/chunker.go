package knowledge

import (
	"strings"
	"unicode/utf8"
)

// Chunker 句子感知的重叠分块器。
// 同样的文本与配置总是产出同样的分块序列（重复入库幂等的前提）。
type Chunker struct {
	targetSize int // 每块目标最大字符数
	overlap    int // 块间重叠字符预算（用最后 1~2 个句子桥接上下文）
	minSize    int // 小于该长度的块直接丢弃
}

// NewChunker 创建分块器
func NewChunker(targetSize, overlap, minSize int) *Chunker {
	if targetSize <= 0 {
		targetSize = 512
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = targetSize / 4
	}
	if minSize < 0 {
		minSize = 0
	}
	return &Chunker{
		targetSize: targetSize,
		overlap:    overlap,
		minSize:    minSize,
	}
}

// ChunkText 将文本切分为重叠的块。
//
// 流程：折叠空白 → 按句子切分 → 贪心累积到 targetSize →
// 关块时用上一块末尾 1~2 个句子作为下一块的开头。
// 单个句子超过 targetSize 时整句保留，可能产出超限块。
func (c *Chunker) ChunkText(text string) []string {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}

	// 整体就在目标尺寸内，单块或为空
	if utf8.RuneCountInString(text) <= c.targetSize {
		if utf8.RuneCountInString(text) >= c.minSize {
			return []string{text}
		}
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	var buf []string // 当前块的句子序列
	bufLen := 0      // buf 连接后的字符长度

	flush := func() {
		if bufLen >= c.minSize && len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, " "))
		}
	}

	for _, sent := range sentences {
		sentLen := utf8.RuneCountInString(sent)

		if len(buf) > 0 && bufLen+1+sentLen > c.targetSize {
			flush()
			buf, bufLen = c.overlapTail(buf)
		}

		buf = append(buf, sent)
		if bufLen > 0 {
			bufLen++
		}
		bufLen += sentLen
	}

	flush()
	return chunks
}

// overlapTail 取刚关闭块的末尾 1~2 个句子作为下一块的种子。
func (c *Chunker) overlapTail(closed []string) ([]string, int) {
	if c.overlap <= 0 || len(closed) == 0 {
		return nil, 0
	}

	last := closed[len(closed)-1]
	tail := []string{last}
	tailLen := utf8.RuneCountInString(last)

	if len(closed) >= 2 {
		prev := closed[len(closed)-2]
		prevLen := utf8.RuneCountInString(prev)
		if tailLen+1+prevLen <= c.overlap {
			tail = []string{prev, last}
			tailLen += 1 + prevLen
		}
	}

	return tail, tailLen
}

var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// splitSentences 在句末标点 + 空白处切分（空白已折叠为单个空格）。
// 找不到任何边界时整体视为一个句子。
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		if sentenceTerminators[runes[i]] && runes[i+1] == ' ' {
			sentences = append(sentences, string(runes[start:i+1]))
			start = i + 2 // 跳过分隔空格
			i++
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

// normalizeWhitespace 空白序列折叠为单个空格并去首尾。
func normalizeWhitespace(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}
