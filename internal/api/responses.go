package api

import (
	"encoding/json"
	"net/http"
)

// APIResponse 统一 JSON 响应
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respond 序列化任意 payload 并写入状态码
func respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	respond(w, status, &APIResponse{
		Code:    status,
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	respond(w, status, &APIResponse{
		Code:    status,
		Message: message,
	})
}

// writeErrorCode 带机器可读错误码的错误响应（鉴权中间件使用）
func writeErrorCode(w http.ResponseWriter, status int, code string, message string) {
	respond(w, status, map[string]interface{}{
		"code":    status,
		"error":   code,
		"message": message,
	})
}
