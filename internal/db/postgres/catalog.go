package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"knowbase/internal/domain/knowledge"
)

// Catalog knowledge.CatalogStore 的 PostgreSQL 实现。
// 只持久化文档目录（名称、来源、chunk 数、元数据），不存正文；
// chunk id 可从 {doc_id}_{index} 重新派生。
type Catalog struct {
	db *sql.DB
}

// NewCatalog 创建目录存储
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// EnsureTable 确保目录表存在
func (c *Catalog) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id          VARCHAR(64) PRIMARY KEY,
		name        VARCHAR(512) NOT NULL,
		source      TEXT NOT NULL,
		format      VARCHAR(32) NOT NULL,
		chunk_count INT NOT NULL DEFAULT 0,
		metadata    JSONB,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := c.db.ExecContext(ctx, ddl)
	return err
}

// Save 写入或覆盖一条目录记录
func (c *Catalog) Save(ctx context.Context, entry *knowledge.CatalogEntry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, name, source, format, chunk_count, metadata, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			format = EXCLUDED.format,
			chunk_count = EXCLUDED.chunk_count,
			metadata = EXCLUDED.metadata,
			ingested_at = EXCLUDED.ingested_at
	`, entry.ID, entry.Name, entry.Source, string(entry.Format), entry.ChunkCount, meta, entry.IngestedAt)
	if err != nil {
		return fmt.Errorf("save catalog entry %s: %w", entry.ID, err)
	}
	return nil
}

// Delete 删除一条目录记录，id 不存在不报错
func (c *Catalog) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete catalog entry %s: %w", id, err)
	}
	return nil
}

// List 返回全部目录记录
func (c *Catalog) List(ctx context.Context) ([]*knowledge.CatalogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, source, format, chunk_count, metadata, ingested_at
		FROM knowledge_documents
		ORDER BY ingested_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var entries []*knowledge.CatalogEntry
	for rows.Next() {
		var (
			entry  knowledge.CatalogEntry
			format string
			meta   []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Source, &format, &entry.ChunkCount, &meta, &entry.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		entry.Format = knowledge.FormatTag(format)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
