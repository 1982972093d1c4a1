package knowledge

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "knowbase/internal/platform/log"
	"knowbase/internal/platform/pool"
)

// TextSource 文本直接入库时的来源描述字面量。
const TextSource = "text"

// contextSeparator 检索上下文中各段落之间的分隔行。
const contextSeparator = "\n\n---\n\n"

// Service 知识检索编排器：入库走 Parser → Chunker → Index，
// 查询走 Index → 引用拼装。所有失败在本层记录日志并降级为
// nil / 空结果，不向宿主进程抛出。
type Service struct {
	cfg     *Config
	index   VectorIndex
	parsers *ParserRegistry
	chunker *Chunker
	pool    *pool.Pool

	catalog CatalogStore // 可选：目录持久化
	lock    IngestLock   // 可选：按文档 id 单飞

	mu   sync.RWMutex
	docs map[string]*Document
}

// NewService 创建检索服务。index 为 nil 时所有索引操作降级为空结果。
func NewService(cfg *Config, index VectorIndex, parsers *ParserRegistry) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if parsers == nil {
		parsers = NewParserRegistry(ParserCapabilities{})
	}
	return &Service{
		cfg:     cfg,
		index:   index,
		parsers: parsers,
		chunker: NewChunker(cfg.ChunkTargetSize, cfg.ChunkOverlap, cfg.ChunkMinSize),
		pool:    pool.New(cfg.IndexWorkers),
		docs:    make(map[string]*Document),
	}
}

// SetCatalog 设置目录持久化存储（可选）。
func (s *Service) SetCatalog(c CatalogStore) {
	s.catalog = c
}

// SetIngestLock 设置入库单飞锁（可选）。
func (s *Service) SetIngestLock(l IngestLock) {
	s.lock = l
}

// Parsers 返回解析器注册表。
func (s *Service) Parsers() *ParserRegistry {
	return s.parsers
}

// Close 关闭内部 worker 池。
func (s *Service) Close() {
	s.pool.Close()
}

// LoadCatalog 从持久化目录恢复文档清单（chunk 只恢复 id 与位置，不含文本）。
func (s *Service) LoadCatalog(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}

	entries, err := s.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		doc := &Document{
			ID:         e.ID,
			Name:       e.Name,
			Source:     e.Source,
			Format:     e.Format,
			Metadata:   cloneMeta(e.Metadata),
			IngestedAt: e.IngestedAt,
			Chunks:     make([]Chunk, e.ChunkCount),
		}
		for i := 0; i < e.ChunkCount; i++ {
			doc.Chunks[i] = Chunk{
				ID:           ChunkID(e.ID, i),
				DocumentID:   e.ID,
				DocumentName: e.Name,
				Index:        i,
			}
		}
		s.docs[e.ID] = doc
	}

	applog.Info("[Knowledge] Catalog restored", "documents", len(entries))
	return nil
}

// ── 入库 ─────────────────────────────────────────────────────

// IngestFile 解析并入库一个本地文件。
// 解析失败、内容为空或索引写入失败时记录日志并返回 nil。
func (s *Service) IngestFile(ctx context.Context, path string, metadata map[string]string) *Document {
	result, err := s.parsers.ParseFile(path)
	if err != nil {
		applog.Warn("[Knowledge] Could not ingest", "source", path, "error", err)
		return nil
	}
	return s.ingest(ctx, filepath.Base(path), path, result.Format, result.Content, mergeMeta(result.Metadata, metadata))
}

// IngestReader 解析并入库一个字节流（如上传文件），按文件名分派解析器。
func (s *Service) IngestReader(ctx context.Context, r io.Reader, filename string, metadata map[string]string) *Document {
	result, err := s.parsers.Get(filename).Parse(r, filename)
	if err != nil {
		applog.Warn("[Knowledge] Could not ingest", "source", filename, "error", err)
		return nil
	}
	// 与 ParseFile 一致：未知扩展名保留 unknown 标签
	format := result.Format
	if s.parsers.DetectType(filename) == FormatUnknown {
		format = FormatUnknown
	}
	return s.ingest(ctx, filename, filename, format, result.Content, mergeMeta(result.Metadata, metadata))
}

// IngestText 直接入库一段文本，格式标签固定为 text。
func (s *Service) IngestText(ctx context.Context, text, name string, metadata map[string]string) *Document {
	if strings.TrimSpace(name) == "" {
		name = "text-" + uuid.NewString()[:8]
	}
	return s.ingest(ctx, name, TextSource, FormatText, text, cloneMeta(metadata))
}

// ingest 共享入库管线：校验 → 内容寻址 id → 分块 → 批量写索引 → 登记目录。
// 从调用方视角入库是原子的；索引写入部分完成后失败时不做回滚。
func (s *Service) ingest(ctx context.Context, name, source string, format FormatTag, content string, metadata map[string]string) *Document {
	start := time.Now()

	content = strings.TrimSpace(content)
	if content == "" {
		applog.Warn("[Knowledge] Could not ingest", "source", source, "error", ErrEmptyContent)
		return nil
	}

	// 文件以路径为内容寻址键，直接入库的文本以名称为键
	idSeed := source
	if source == TextSource {
		idSeed = name
	}
	docID := DocumentID(idSeed, content)

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, docID)
		if err != nil {
			// 锁后端故障时继续走无锁路径（接受 last-writer-wins）
			applog.Warn("[Knowledge] Ingest lock unavailable, proceeding without it", "doc_id", docID, "error", err)
		} else if !acquired {
			applog.Warn("[Knowledge] Could not ingest", "source", source, "doc_id", docID,
				"error", "ingestion already in flight for this content")
			return nil
		} else {
			defer func() {
				if err := s.lock.Release(ctx, docID); err != nil {
					applog.Warn("[Knowledge] Failed to release ingest lock", "doc_id", docID, "error", err)
				}
			}()
		}
	}

	pieces := s.chunker.ChunkText(content)
	if len(pieces) == 0 {
		applog.Warn("[Knowledge] Could not ingest", "source", source, "error", ErrEmptyContent)
		return nil
	}

	chunks := make([]Chunk, len(pieces))
	items := make([]IndexItem, len(pieces))
	for i, text := range pieces {
		meta := cloneMeta(metadata)
		meta["document_id"] = docID
		meta["document_name"] = name
		meta["chunk_index"] = strconv.Itoa(i)
		meta["format"] = string(format)
		meta["source"] = source

		chunks[i] = Chunk{
			ID:           ChunkID(docID, i),
			DocumentID:   docID,
			DocumentName: name,
			Index:        i,
			Content:      text,
			Metadata:     meta,
		}
		items[i] = IndexItem{
			ID:       chunks[i].ID,
			Content:  text,
			Metadata: meta,
		}
	}

	if err := s.submitIndex(ctx, func(ctx context.Context) error {
		return s.index.Add(ctx, items)
	}); err != nil {
		applog.Warn("[Knowledge] Could not ingest", "source", source, "doc_id", docID, "error", err)
		return nil
	}

	doc := &Document{
		ID:         docID,
		Name:       name,
		Source:     source,
		Format:     format,
		Content:    content,
		Chunks:     chunks,
		Metadata:   cloneMeta(metadata),
		IngestedAt: time.Now(),
	}

	s.mu.Lock()
	prev := s.docs[docID]
	s.docs[docID] = doc
	s.mu.Unlock()

	// 同 id 重复入库按 id 覆盖；旧版本多出的 chunk 需要显式清理
	if prev != nil && len(prev.Chunks) > len(chunks) {
		surplus := make([]string, 0, len(prev.Chunks)-len(chunks))
		for i := len(chunks); i < len(prev.Chunks); i++ {
			surplus = append(surplus, prev.Chunks[i].ID)
		}
		if err := s.submitIndex(ctx, func(ctx context.Context) error {
			return s.index.Delete(ctx, surplus)
		}); err != nil {
			applog.Warn("[Knowledge] Failed to prune stale chunks", "doc_id", docID, "error", err)
		}
	}

	if s.catalog != nil {
		entry := &CatalogEntry{
			ID:         doc.ID,
			Name:       doc.Name,
			Source:     doc.Source,
			Format:     doc.Format,
			ChunkCount: len(doc.Chunks),
			Metadata:   cloneMeta(doc.Metadata),
			IngestedAt: doc.IngestedAt,
		}
		if err := s.catalog.Save(ctx, entry); err != nil {
			applog.Warn("[Knowledge] Failed to persist catalog entry", "doc_id", docID, "error", err)
		}
	}

	applog.Info("[Knowledge] Document ingested",
		"doc_id", docID,
		"name", name,
		"format", format,
		"chunks", len(chunks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return doc
}

// ── 检索 ─────────────────────────────────────────────────────

// Search 语义检索，按相关度降序返回至多 topK 条结果。
// 任何失败都降级为空结果。
func (s *Service) Search(ctx context.Context, query string, topK int, filter map[string]string) []SearchResult {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	var hits []IndexHit
	err := s.submitIndex(ctx, func(ctx context.Context) error {
		var qErr error
		hits, qErr = s.index.Query(ctx, query, topK, filter)
		return qErr
	})
	if err != nil {
		applog.Warn("[Knowledge] Search degraded to no results", "query", query, "error", err)
		return nil
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		idx, _ := strconv.Atoi(h.Metadata["chunk_index"])
		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:           h.ID,
				DocumentID:   h.Metadata["document_id"],
				DocumentName: h.Metadata["document_name"],
				Index:        idx,
				Content:      h.Content,
				Metadata:     h.Metadata,
			},
			Score: 1 - h.Distance,
		})
	}

	// Index 已按 distance 升序返回；稳定排序兜底保证 score 单调
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	applog.Debug("[Knowledge] Search", "query", query, "top_k", topK, "results", len(results))
	return results
}

// QueryDocuments 检索并拼装带引用的上下文，交给下游回答生成方。
// 无结果时返回 ("", nil)。
func (s *Service) QueryDocuments(ctx context.Context, question string, topK int) (string, []SearchResult) {
	results := s.Search(ctx, question, topK, nil)
	if len(results) == 0 {
		return "", nil
	}

	blocks := make([]string, len(results))
	for i, res := range results {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, res.Chunk.DocumentName, res.Chunk.Content)
	}
	return strings.Join(blocks, contextSeparator), results
}

// ── 目录 ─────────────────────────────────────────────────────

// ListDocuments 返回当前目录快照（不保证顺序）。
func (s *Service) ListDocuments() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	return docs
}

// GetDocument 按 id 查找文档，不存在返回 nil。
func (s *Service) GetDocument(id string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[id]
}

// DeleteDocument 删除文档及其全部 chunk。返回是否实际发生了删除。
func (s *Service) DeleteDocument(ctx context.Context, id string) bool {
	s.mu.RLock()
	doc := s.docs[id]
	s.mu.RUnlock()
	if doc == nil {
		return false
	}

	if err := s.submitIndex(ctx, func(ctx context.Context) error {
		return s.index.Delete(ctx, doc.ChunkIDs())
	}); err != nil {
		applog.Warn("[Knowledge] Failed to delete document from index", "doc_id", id, "error", err)
		return false
	}

	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()

	if s.catalog != nil {
		if err := s.catalog.Delete(ctx, id); err != nil {
			applog.Warn("[Knowledge] Failed to delete catalog entry", "doc_id", id, "error", err)
		}
	}

	applog.Info("[Knowledge] Document deleted", "doc_id", id, "chunks", len(doc.Chunks))
	return true
}

// ── 内部 ─────────────────────────────────────────────────────

// submitIndex 把一次索引操作移入有界 worker 池执行。
func (s *Service) submitIndex(ctx context.Context, op func(ctx context.Context) error) error {
	if s.index == nil {
		return ErrBackendUnavailable
	}
	return s.pool.Submit(ctx, func() error {
		return op(ctx)
	})
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func mergeMeta(base, extra map[string]string) map[string]string {
	out := cloneMeta(base)
	for k, v := range extra {
		out[k] = v
	}
	return out
}
