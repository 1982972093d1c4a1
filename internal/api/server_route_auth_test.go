package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"knowbase/internal/domain/knowledge"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	svc := knowledge.NewService(nil, nil, nil)
	t.Cleanup(svc.Close)

	cfg := DefaultServerConfig()
	cfg.JWTSecret = "test-secret"
	server := NewServer(cfg, svc)
	return server.Handler()
}

func signTestToken(t *testing.T, secret string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "tester",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// TestHealthBypassesJWT 健康检查无需鉴权
func TestHealthBypassesJWT(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health, got %d", rr.Code)
	}
}

// TestKnowledgeRoutesRequireJWT 知识库路由全部需要 JWT
func TestKnowledgeRoutesRequireJWT(t *testing.T) {
	handler := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"search requires jwt", http.MethodPost, "/knowledge/search", `{"query":"x"}`},
		{"query requires jwt", http.MethodPost, "/knowledge/query", `{"query":"x"}`},
		{"ingest requires jwt", http.MethodPost, "/knowledge/documents", `{"content":"x"}`},
		{"list requires jwt", http.MethodGet, "/knowledge/documents", ""},
		{"get requires jwt", http.MethodGet, "/knowledge/documents/abc", ""},
		{"delete requires jwt", http.MethodDelete, "/knowledge/documents/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for %s %s, got %d", tt.method, tt.path, rr.Code)
			}
		})
	}
}

// TestValidTokenPassesAuth 合法 token 可通过鉴权进入处理器
func TestValidTokenPassesAuth(t *testing.T) {
	handler := newTestHandler(t)
	token := signTestToken(t, "test-secret")

	req := httptest.NewRequest(http.MethodPost, "/knowledge/search", strings.NewReader(`{"query":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	// 无索引后端时检索降级为空结果，但鉴权必须放行
	if rr.Code == http.StatusUnauthorized {
		t.Fatalf("expected valid token to pass auth, got 401")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for degraded search, got %d", rr.Code)
	}
}

// TestWrongSecretRejected 错误密钥签发的 token 被拒绝
func TestWrongSecretRejected(t *testing.T) {
	handler := newTestHandler(t)
	token := signTestToken(t, "other-secret")

	req := httptest.NewRequest(http.MethodGet, "/knowledge/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", rr.Code)
	}
}

// TestServerRequiresJWTSecret 缺失 JWT_SECRET 时拒绝构建路由
func TestServerRequiresJWTSecret(t *testing.T) {
	svc := knowledge.NewService(nil, nil, nil)
	t.Cleanup(svc.Close)

	server := NewServer(DefaultServerConfig(), svc)
	if _, err := server.buildRouter(); err == nil {
		t.Fatal("expected error when JWT secret is missing")
	}
}
