package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

const tenantKey = "tenant"

// HostResolver maps a request host to its tenant.
type HostResolver interface {
	ResolveHost(ctx context.Context, host string) (*model.Tenant, error)
}

// TenantFromHost resolves the tenant of storefront requests from the Host
// header and binds it to the request context.
func TenantFromHost(resolver HostResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			host := c.Request().Host
			tenant, err := resolver.ResolveHost(c.Request().Context(), host)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					metrics.RecordHandlerError("unknown_tenant")
					return c.JSON(http.StatusNotFound, echo.Map{"error": "store not found"})
				}
				logger.FromEcho(c).Error("Tenant resolution failed", zap.String("host", host), zap.Error(err))
				metrics.RecordHandlerError("tenant_resolution")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}

			ctx, err := tenantctx.Bind(c.Request().Context(), tenant.ID)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}
			c.Set(tenantKey, tenant)
			bindLogger(c, ctx, tenant.ID)
			return next(c)
		}
	}
}

// TenantFromContext returns the tenant TenantFromHost resolved.
func TenantFromContext(c echo.Context) (*model.Tenant, bool) {
	t, ok := c.Get(tenantKey).(*model.Tenant)
	return t, ok
}

// bindLogger installs ctx on the request and tags the request logger with
// the tenant.
func bindLogger(c echo.Context, ctx context.Context, tenantID string) {
	c.SetRequest(c.Request().WithContext(ctx))
	logger.Attach(c, logger.FromEcho(c).With(zap.String("tenant_id", tenantID)))
}
