// Package tenantctx binds the current tenant id to the dynamic extent of one
// operation. The binding travels inside a context.Context, so concurrent
// requests and jobs never observe each other's tenant.
package tenantctx

import (
	"context"

	"github.com/suteetoe/shopfleet/internal/apperr"
)

type tenantKey struct{}

type bypassKey struct{}

// Bind returns a child of ctx bound to tenantID. A nested Bind shadows the
// outer binding for the lifetime of the returned context only.
func Bind(ctx context.Context, tenantID string) (context.Context, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantKey{}, tenantID), nil
}

// MustBind is Bind for callers that already validated tenantID.
func MustBind(ctx context.Context, tenantID string) context.Context {
	bound, err := Bind(ctx, tenantID)
	if err != nil {
		panic(err)
	}
	return bound
}

// Current returns the tenant id bound to ctx.
func Current(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(tenantKey{}).(string)
	return id, ok && id != ""
}

// WithPlatformBypass marks ctx as a platform-admin operation that may skip
// tenant scoping. The reason is attached to every bypassed call for audit.
func WithPlatformBypass(ctx context.Context, reason string) (context.Context, error) {
	if reason == "" {
		return nil, apperr.Validation("bypass reason is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassKey{}, reason), nil
}

// BypassReason reports whether ctx carries a platform bypass and why.
func BypassReason(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	reason, ok := ctx.Value(bypassKey{}).(string)
	return reason, ok && reason != ""
}

// Detach returns a context that keeps ctx's values except the tenant binding
// and the bypass marker, and is not cancelled with ctx. Work that outlives
// the request, such as async notifications, starts from here.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return detached{Context: context.WithoutCancel(ctx)}
}

type detached struct {
	context.Context
}

func (d detached) Value(key any) any {
	switch key.(type) {
	case tenantKey, bypassKey:
		return nil
	}
	return d.Context.Value(key)
}
