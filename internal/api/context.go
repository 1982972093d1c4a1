package api

import (
	"context"
	"fmt"
)

// Identity 调用方身份（注入到 context）
type Identity struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
}

type identityContextKey struct{}

// WithIdentity 注入 Identity 到 context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom 从 context 提取 Identity
func IdentityFrom(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || id == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return id, nil
}
