package knowledge

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// FormatTag 文档格式标签
type FormatTag string

const (
	FormatPDF      FormatTag = "pdf"
	FormatWord     FormatTag = "docx"
	FormatText     FormatTag = "text"
	FormatMarkdown FormatTag = "markdown"
	FormatHTML     FormatTag = "html"
	FormatUnknown  FormatTag = "unknown"
)

// Document 一次入库的完整文档
type Document struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Source     string            `json:"source"` // 文件路径，或字面量 "text"
	Format     FormatTag         `json:"format"`
	Content    string            `json:"content,omitempty"`
	Chunks     []Chunk           `json:"chunks,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// ChunkCount 返回文档拥有的 chunk 数量。
func (d *Document) ChunkCount() int {
	return len(d.Chunks)
}

// ChunkIDs 返回文档拥有的全部 chunk id（派生自 {doc_id}_{index}）。
func (d *Document) ChunkIDs() []string {
	ids := make([]string, len(d.Chunks))
	for i := range d.Chunks {
		ids[i] = d.Chunks[i].ID
	}
	return ids
}

// Chunk 文档的最小可检索单元
type Chunk struct {
	ID           string            `json:"id"` // {document_id}_{index}
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	Index        int               `json:"index"` // 文档内从 0 开始连续递增
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SearchResult 单条检索结果（临时对象，不持久化、不缓存）
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"` // 1 - cosine distance，越大越相关
}

// idContentPrefix 参与文档 id 计算的内容前缀长度（字符）。
const idContentPrefix = 512

// DocumentID 由来源描述 + 内容前缀派生内容寻址 id。
// 同一来源、内容未变时重复入库得到相同 id，保证幂等。
func DocumentID(source, content string) string {
	prefix := content
	if len(prefix) > idContentPrefix {
		prefix = prefix[:idContentPrefix]
	}
	sum := sha256.Sum256([]byte(source + "\x00" + prefix))
	return fmt.Sprintf("%x", sum[:8])
}

// ChunkID 派生 chunk id：{document_id}_{index}。
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}
