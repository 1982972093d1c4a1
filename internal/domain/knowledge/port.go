package knowledge

import (
	"context"
	"time"
)

// IndexItem 写入向量索引的一条记录。
type IndexItem struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// IndexHit 向量索引返回的一条命中。Distance 为 cosine distance，越小越相关。
type IndexHit struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float64
}

// VectorIndex defines the storage/search operations required by Service.
// Implementations persist (id, text, metadata) tuples and answer
// nearest-neighbor queries; Add is idempotent per id, Delete of an
// unknown id is a no-op.
type VectorIndex interface {
	Add(ctx context.Context, items []IndexItem) error
	Query(ctx context.Context, text string, topK int, filter map[string]string) ([]IndexHit, error)
	Delete(ctx context.Context, ids []string) error
}

// Capability 可选依赖的显式探针，构造时注入，便于在缺失环境下测试。
type Capability interface {
	Available() bool
}

// StaticCapability 固定可用性的 Capability 实现。
type StaticCapability bool

func (c StaticCapability) Available() bool { return bool(c) }

// CatalogEntry 持久化目录中的文档记录（不含正文与 chunk 文本）。
type CatalogEntry struct {
	ID         string
	Name       string
	Source     string
	Format     FormatTag
	ChunkCount int
	Metadata   map[string]string
	IngestedAt time.Time
}

// CatalogStore 可选的文档目录持久化存储。
type CatalogStore interface {
	Save(ctx context.Context, entry *CatalogEntry) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*CatalogEntry, error)
}

// IngestLock 可选的按文档 id 单飞锁，防止同一内容并发重复入库。
type IngestLock interface {
	Acquire(ctx context.Context, docID string) (bool, error)
	Release(ctx context.Context, docID string) error
}
