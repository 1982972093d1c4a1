package knowledge

import "errors"

// 错误分类。Service 层统一捕获并降级（见 service.go），不向调用方抛出。
var (
	// ErrParse 文档不可读或内容损坏。
	ErrParse = errors.New("knowledge: parse failed")

	// ErrMissingCapability 可选的解析能力（PDF/Word）未安装或未启用。
	ErrMissingCapability = errors.New("knowledge: capability not available")

	// ErrBackendUnavailable 向量索引后端未初始化或不可达。
	ErrBackendUnavailable = errors.New("knowledge: index backend unavailable")

	// ErrEmptyContent 解析成功但未提取到任何可用文本。
	ErrEmptyContent = errors.New("knowledge: no text content extracted")
)
