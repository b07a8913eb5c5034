// Package tools provides the MCP tools of ekaya-query.
package tools

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

type contextKey int

const tenantIDKey contextKey = iota

var errNoTenant = errors.New("no tenant in request context")

// WithTenantID stores the tenant an MCP session acts for.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantIDFromContext returns the tenant stored by WithTenantID.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Deps are the services the data tools call.
type Deps struct {
	Datasources   services.DatasourceService
	Queries       services.QueryService
	Introspection services.IntrospectionService
	TenantContext services.TenantContextFunc
	// DefaultRowLimit applies when run_query is called without a limit.
	DefaultRowLimit int
	Logger          *zap.Logger
}

// acquireTenant resolves the caller's tenant and a tenant-scoped context.
// The cleanup function MUST be called when err is nil.
func acquireTenant(ctx context.Context, deps *Deps) (uuid.UUID, context.Context, func(), error) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return uuid.Nil, nil, nil, errNoTenant
	}
	acquire := deps.TenantContext
	if acquire == nil {
		acquire = services.UnscopedTenantContext
	}
	tenantCtx, cleanup, err := acquire(ctx, tenantID)
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	return tenantID, tenantCtx, cleanup, nil
}
