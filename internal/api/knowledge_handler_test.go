package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"knowbase/internal/domain/knowledge"
)

// stubIndex 词重合度打分的内存索引，用于端到端走通 handler 路径。
type stubIndex struct {
	mu    sync.Mutex
	items map[string]knowledge.IndexItem
}

func newStubIndex() *stubIndex {
	return &stubIndex{items: make(map[string]knowledge.IndexItem)}
}

func (s *stubIndex) Add(ctx context.Context, items []knowledge.IndexItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *stubIndex) Query(ctx context.Context, text string, topK int, filter map[string]string) ([]knowledge.IndexHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []knowledge.IndexHit
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Content), strings.ToLower(text)) {
			hits = append(hits, knowledge.IndexHit{
				ID:       it.ID,
				Content:  it.Content,
				Metadata: it.Metadata,
				Distance: 0.2,
			})
		}
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *stubIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func newIndexedHandler(t *testing.T) (http.Handler, string) {
	t.Helper()

	kbCfg := knowledge.DefaultConfig()
	kbCfg.ChunkMinSize = 1 // 测试语料较短，放开最小块长度
	svc := knowledge.NewService(kbCfg, newStubIndex(), nil)
	t.Cleanup(svc.Close)

	cfg := DefaultServerConfig()
	cfg.JWTSecret = "test-secret"
	server := NewServer(cfg, svc)
	return server.Handler(), signTestToken(t, "test-secret")
}

func doJSON(t *testing.T, handler http.Handler, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// TestIngestThenSearchRoundTrip 文本入库后可以被检索到
func TestIngestThenSearchRoundTrip(t *testing.T) {
	handler, token := newIndexedHandler(t)

	rr := doJSON(t, handler, token, http.MethodPost, "/knowledge/documents",
		`{"name":"gopher-notes","content":"Goroutines communicate through channels."}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for ingest, got %d: %s", rr.Code, rr.Body.String())
	}

	var ingestResp struct {
		Data struct {
			DocID      string `json:"doc_id"`
			ChunkCount int    `json:"chunk_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ingestResp); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	if ingestResp.Data.DocID == "" || ingestResp.Data.ChunkCount == 0 {
		t.Fatalf("unexpected ingest response: %s", rr.Body.String())
	}

	rr = doJSON(t, handler, token, http.MethodPost, "/knowledge/search", `{"query":"channels"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for search, got %d: %s", rr.Code, rr.Body.String())
	}

	var searchResp struct {
		Data struct {
			Count   int `json:"count"`
			Results []struct {
				Chunk struct {
					DocumentName string `json:"document_name"`
				} `json:"chunk"`
				Score float64 `json:"score"`
			} `json:"results"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &searchResp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if searchResp.Data.Count != 1 {
		t.Fatalf("expected 1 result, got %d", searchResp.Data.Count)
	}
	if got := searchResp.Data.Results[0].Chunk.DocumentName; got != "gopher-notes" {
		t.Errorf("expected document gopher-notes, got %q", got)
	}
	if score := searchResp.Data.Results[0].Score; score < 0.79 || score > 0.81 {
		t.Errorf("expected score 0.8 (1 - distance), got %f", score)
	}
}

// TestQueryReturnsAssembledContext /query 返回拼装好的引用上下文
func TestQueryReturnsAssembledContext(t *testing.T) {
	handler, token := newIndexedHandler(t)

	doJSON(t, handler, token, http.MethodPost, "/knowledge/documents",
		`{"name":"db-notes","content":"Indexes speed up query plans."}`)

	rr := doJSON(t, handler, token, http.MethodPost, "/knowledge/query", `{"query":"query plans"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data struct {
			Context string `json:"context"`
			Count   int    `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Count != 1 {
		t.Fatalf("expected 1 source, got %d", resp.Data.Count)
	}
	if !strings.HasPrefix(resp.Data.Context, "[Source 1: db-notes]\n") {
		t.Errorf("unexpected context header: %q", resp.Data.Context)
	}
}

// TestIngestRejectsEmptyContent content 缺失返回 400
func TestIngestRejectsEmptyContent(t *testing.T) {
	handler, token := newIndexedHandler(t)

	rr := doJSON(t, handler, token, http.MethodPost, "/knowledge/documents", `{"name":"empty"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing content, got %d", rr.Code)
	}
}

// TestDocumentLifecycle 列表 / 详情 / 删除
func TestDocumentLifecycle(t *testing.T) {
	handler, token := newIndexedHandler(t)

	rr := doJSON(t, handler, token, http.MethodPost, "/knowledge/documents",
		`{"name":"lifecycle","content":"A short lived document for lifecycle checks."}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d", rr.Code)
	}
	var created struct {
		Data struct {
			DocID string `json:"doc_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, handler, token, http.MethodGet, "/knowledge/documents", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), created.Data.DocID) {
		t.Errorf("list does not contain ingested document: %s", rr.Body.String())
	}

	rr = doJSON(t, handler, token, http.MethodGet, "/knowledge/documents/"+created.Data.DocID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rr.Code)
	}

	rr = doJSON(t, handler, token, http.MethodDelete, "/knowledge/documents/"+created.Data.DocID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rr.Code)
	}

	rr = doJSON(t, handler, token, http.MethodGet, "/knowledge/documents/"+created.Data.DocID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

// TestUploadDocument multipart 上传走完整解析入库链路
func TestUploadDocument(t *testing.T) {
	handler, token := newIndexedHandler(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.md")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fmt.Fprint(fw, "# Upload\n\nUploaded markdown body for parsing.")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/knowledge/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for upload, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"format":"markdown"`) {
		t.Errorf("expected markdown format in response: %s", rr.Body.String())
	}
}
