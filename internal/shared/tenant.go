package shared

import (
	"context"
	"errors"
)

// ErrTenantRequired indicates a request arrived without a tenant scope.
var ErrTenantRequired = errors.New("tenant id required")

type tenantContextKey struct{}

// ContextWithTenant stores the tenant (company) id in context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}
