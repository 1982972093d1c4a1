package chromemdb

import (
	"context"
	"errors"
	"testing"

	"knowbase/internal/domain/knowledge"
)

// stubEmbedder 确定性向量表，未知文本回退为第一坐标轴。
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

func (s *stubEmbedder) Dims() int { return 3 }

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	emb := &stubEmbedder{vectors: map[string][]float32{
		"alpha doc": {1, 0, 0},
		"beta doc":  {0, 1, 0},
		"gamma doc": {0, 0, 1},
		"alpha":     {1, 0, 0},
		"beta":      {0, 1, 0},
	}}

	idx, err := NewIndex(Config{
		Path:       t.TempDir(),
		Collection: "test",
	}, emb)
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	return idx
}

func seedItems(t *testing.T, idx *Index) {
	t.Helper()
	err := idx.Add(context.Background(), []knowledge.IndexItem{
		{ID: "a_0", Content: "alpha doc", Metadata: map[string]string{"document_id": "a"}},
		{ID: "b_0", Content: "beta doc", Metadata: map[string]string{"document_id": "b"}},
		{ID: "c_0", Content: "gamma doc", Metadata: map[string]string{"document_id": "c"}},
	})
	if err != nil {
		t.Fatalf("add items: %v", err)
	}
}

// TestNewIndexRequiresEmbedder 无嵌入器时返回 ErrBackendUnavailable
func TestNewIndexRequiresEmbedder(t *testing.T) {
	_, err := NewIndex(Config{Path: t.TempDir()}, nil)
	if !errors.Is(err, knowledge.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

// TestQueryOrdering 最相似的条目排在最前，distance = 1 - similarity
func TestQueryOrdering(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx)

	hits, err := idx.Query(context.Background(), "alpha", 3, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits, got none")
	}

	if hits[0].ID != "a_0" {
		t.Errorf("expected a_0 as best match, got %q", hits[0].ID)
	}
	if hits[0].Distance > 0.01 {
		t.Errorf("identical vector should have near-zero distance, got %f", hits[0].Distance)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("hits not sorted by distance: %f before %f", hits[i-1].Distance, hits[i].Distance)
		}
	}
	if hits[0].Metadata["document_id"] != "a" {
		t.Errorf("metadata lost on round trip: %v", hits[0].Metadata)
	}
}

// TestQueryEmptyCollection 空 collection 返回空结果而不是报错
func TestQueryEmptyCollection(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Query(context.Background(), "alpha", 3, nil)
	if err != nil {
		t.Fatalf("query on empty collection: %v", err)
	}
	if hits != nil {
		t.Errorf("expected nil hits, got %v", hits)
	}
}

// TestQueryTopKCappedAtCount topK 超过条目数时自动收敛
func TestQueryTopKCappedAtCount(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx)

	hits, err := idx.Query(context.Background(), "beta", 100, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("expected 3 hits, got %d", len(hits))
	}
}

// TestDeleteRemovesItems 删除后条目不再可检索
func TestDeleteRemovesItems(t *testing.T) {
	idx := newTestIndex(t)
	seedItems(t, idx)

	if err := idx.Delete(context.Background(), []string{"a_0", "b_0"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := idx.Count(); got != 1 {
		t.Errorf("expected 1 item left, got %d", got)
	}

	hits, err := idx.Query(context.Background(), "alpha", 3, nil)
	if err != nil {
		t.Fatalf("query after delete: %v", err)
	}
	for _, h := range hits {
		if h.ID == "a_0" || h.ID == "b_0" {
			t.Errorf("deleted item %q still returned", h.ID)
		}
	}
}

// TestAddEmptyBatch 空批次写入是 no-op
func TestAddEmptyBatch(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Add(context.Background(), nil); err != nil {
		t.Fatalf("empty add must succeed, got %v", err)
	}
	if got := idx.Count(); got != 0 {
		t.Errorf("expected empty collection, got %d items", got)
	}
}
