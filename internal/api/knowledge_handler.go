package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"knowbase/internal/domain/knowledge"
	applog "knowbase/internal/platform/log"
)

// KnowledgeHandler 知识检索与文档管理 API
type KnowledgeHandler struct {
	svc       *knowledge.Service
	maxFileMB int
}

// NewKnowledgeHandler 创建知识库处理器
func NewKnowledgeHandler(svc *knowledge.Service, maxFileMB int) *KnowledgeHandler {
	if maxFileMB <= 0 {
		maxFileMB = 50
	}
	return &KnowledgeHandler{
		svc:       svc,
		maxFileMB: maxFileMB,
	}
}

// RegisterRoutes 注册知识库路由
func (h *KnowledgeHandler) RegisterRoutes(r chi.Router) {
	r.Route("/knowledge", func(r chi.Router) {
		// 知识检索
		r.Post("/search", h.Search)
		r.Post("/query", h.Query)

		// 文档管理
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.IngestText)
			r.Post("/upload", h.UploadDocument)
			r.Get("/", h.ListDocuments)
			r.Get("/{docID}", h.GetDocument)
			r.Delete("/{docID}", h.DeleteDocument)
		})
	})
}

// --- 知识检索 ---

type searchRequest struct {
	Query  string            `json:"query"`
	TopK   int               `json:"top_k,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	results := h.svc.Search(r.Context(), req.Query, req.TopK, req.Filter)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":    results,
		"count":      len(results),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// Query 检索并拼装上下文（供 LLM 提示词使用）
func (h *KnowledgeHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	contextText, results := h.svc.QueryDocuments(r.Context(), req.Query, req.TopK)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"context":    contextText,
		"sources":    results,
		"count":      len(results),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// --- 文档管理 ---

type ingestTextRequest struct {
	Name     string            `json:"name"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (h *KnowledgeHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	start := time.Now()
	doc := h.svc.IngestText(r.Context(), req.Content, req.Name, req.Metadata)
	if doc == nil {
		writeError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"doc_id":      doc.ID,
		"name":        doc.Name,
		"chunk_count": doc.ChunkCount(),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

// UploadDocument 文件上传入库（multipart/form-data）
func (h *KnowledgeHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	limitBytes := int64(h.maxFileMB) << 20

	// 解析 multipart（限制 maxFileMB MB）
	if err := r.ParseMultipartForm(limitBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > 0 && header.Size > limitBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file size exceeds limit (%dMB)", h.maxFileMB))
		return
	}

	var metadata map[string]string
	if source := r.FormValue("source"); source != "" {
		metadata = map[string]string{"upload_source": source}
	}

	start := time.Now()
	doc := h.svc.IngestReader(r.Context(), file, header.Filename, metadata)
	if doc == nil {
		applog.Warn("[Knowledge] Upload produced no document", "filename", header.Filename)
		writeError(w, http.StatusUnprocessableEntity, "no indexable content extracted from file")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"doc_id":      doc.ID,
		"name":        doc.Name,
		"format":      doc.Format,
		"chunk_count": doc.ChunkCount(),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

func (h *KnowledgeHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.svc.ListDocuments()

	summaries := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, documentSummary(doc))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *KnowledgeHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	doc := h.svc.GetDocument(docID)
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, documentSummary(doc))
}

func (h *KnowledgeHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if !h.svc.DeleteDocument(r.Context(), docID) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// documentSummary 文档摘要（不含分块正文）
func documentSummary(doc *knowledge.Document) map[string]interface{} {
	return map[string]interface{}{
		"id":          doc.ID,
		"name":        doc.Name,
		"source":      doc.Source,
		"format":      doc.Format,
		"chunk_count": doc.ChunkCount(),
		"metadata":    doc.Metadata,
		"ingested_at": doc.IngestedAt,
	}
}
