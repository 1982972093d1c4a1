// Package chromemdb 用嵌入式向量库 chromem-go 实现 knowledge.VectorIndex。
// 数据以 gob 文件形式按 collection 落盘，删除整个目录即可重置索引。
package chromemdb

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"

	"knowbase/internal/domain/knowledge"
	applog "knowbase/internal/platform/log"
)

// Config chromem 索引配置
type Config struct {
	Path       string // 持久化目录
	Collection string // collection 名称
	Compress   bool   // gzip 压缩落盘
}

// Index knowledge.VectorIndex 的 chromem-go 实现
type Index struct {
	db       *chromem.DB
	col      *chromem.Collection
	embedder knowledge.Embedder
}

// NewIndex 打开（或创建）持久化 collection。
// embedder 为空时后端视为未初始化，返回错误由调用方降级处理。
func NewIndex(cfg Config, embedder knowledge.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", knowledge.ErrBackendUnavailable)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: index path is empty", knowledge.ErrBackendUnavailable)
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge"
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index dir %s: %v", knowledge.ErrBackendUnavailable, cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: open chromem db: %v", knowledge.ErrBackendUnavailable, err)
	}

	idx := &Index{db: db, embedder: embedder}
	col, err := db.GetOrCreateCollection(cfg.Collection, nil, idx.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", knowledge.ErrBackendUnavailable, cfg.Collection, err)
	}
	idx.col = col

	applog.Info("[Knowledge/Index] chromem collection ready",
		"path", cfg.Path,
		"collection", cfg.Collection,
		"documents", col.Count(),
	)
	return idx, nil
}

// embeddingFunc 把批量 Embedder 适配为 chromem 的单文本接口（查询向量用）。
func (i *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := i.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
		}
		return vectors[0], nil
	}
}

// Add 批量写入。同一 id 重复写入即覆盖（幂等）。
func (i *Index) Add(ctx context.Context, items []knowledge.IndexItem) error {
	if i == nil || i.col == nil {
		return knowledge.ErrBackendUnavailable
	}
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for n, it := range items {
		texts[n] = it.Content
	}

	// 批量生成向量，写入时无须再逐条计算
	embeddings, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d items: %w", len(items), err)
	}

	docs := make([]chromem.Document, len(items))
	for n, it := range items {
		docs[n] = chromem.Document{
			ID:        it.ID,
			Content:   it.Content,
			Metadata:  it.Metadata,
			Embedding: embeddings[n],
		}
	}

	if err := i.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	applog.Debug("[Knowledge/Index] Items added", "count", len(items))
	return nil
}

// Query 相似度检索，按 distance 升序返回至多 topK 条。
func (i *Index) Query(ctx context.Context, text string, topK int, filter map[string]string) ([]knowledge.IndexHit, error) {
	if i == nil || i.col == nil {
		return nil, knowledge.ErrBackendUnavailable
	}
	if text == "" || topK <= 0 {
		return nil, nil
	}

	// chromem 要求 nResults 不超过 collection 内文档数
	count := i.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := i.col.Query(ctx, text, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]knowledge.IndexHit, len(results))
	for n, r := range results {
		hits[n] = knowledge.IndexHit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Distance: 1 - float64(r.Similarity),
		}
	}
	return hits, nil
}

// Delete 按 id 删除，id 不存在时静默跳过。
func (i *Index) Delete(ctx context.Context, ids []string) error {
	if i == nil || i.col == nil {
		return knowledge.ErrBackendUnavailable
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if err := i.col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}

	applog.Debug("[Knowledge/Index] Items deleted", "count", len(ids))
	return nil
}

// Count 返回 collection 内的条目数。
func (i *Index) Count() int {
	if i == nil || i.col == nil {
		return 0
	}
	return i.col.Count()
}
