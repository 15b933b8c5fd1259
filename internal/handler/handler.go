// Package handler exposes provisioning, tenant administration and the
// storefront over HTTP.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/catalog"
	"github.com/suteetoe/shopfleet/internal/middleware"
	"github.com/suteetoe/shopfleet/internal/provisioning"
	"github.com/suteetoe/shopfleet/internal/registry"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/template"
	"github.com/suteetoe/shopfleet/pkg/jwtutil"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// Handler holds the services the routes call.
type Handler struct {
	ServiceName  string
	Provisioning *provisioning.Service
	Registry     *registry.Registry
	Products     *catalog.Products
	Templates    *template.Resolver
	// Client is the tenant-scoped storage client.
	Client storage.Client
}

// RouteConfig carries the middleware dependencies of Register.
type RouteConfig struct {
	JWT              *jwtutil.JWTUtil
	ProvisionLimiter *middleware.IPRateLimiter
	WebhookSecret    string
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo, rc RouteConfig) {
	e.GET("/health", h.HealthCheck)

	provision := []echo.MiddlewareFunc{}
	if rc.ProvisionLimiter != nil {
		provision = append(provision, rc.ProvisionLimiter.Middleware())
	}
	e.POST("/api/provision", h.Provision, provision...)
	e.POST("/webhooks/identity", h.IdentityWebhook, middleware.WebhookSecretMiddleware(rc.WebhookSecret))

	admin := e.Group("/admin", middleware.JWTAuthMiddleware(rc.JWT), middleware.PlatformAdminMiddleware())
	admin.GET("/tenants", h.ListTenants)
	admin.POST("/tenants/:id/activate", h.ActivateTenant)
	admin.POST("/tenants/:id/deactivate", h.DeactivateTenant)

	api := e.Group("/api", middleware.JWTAuthMiddleware(rc.JWT), middleware.TenantAdminMiddleware())
	api.GET("/tenant", h.GetTenant)
	api.PATCH("/tenant", h.UpdateTenant)
	api.PUT("/tenant/domain", h.SetCustomDomain)
	api.GET("/tenant/stats", h.CatalogStats)
	api.GET("/products", h.ListProducts)
	api.POST("/products", h.CreateProduct)
	api.GET("/products/:id", h.GetProduct)
	api.PUT("/products/:id", h.UpdateProduct)
	api.DELETE("/products/:id", h.DeleteProduct)

	store := e.Group("/store", middleware.TenantFromHost(h.Registry))
	store.GET("", h.Storefront)
	store.GET("/products", h.StoreProducts)
	store.GET("/products/:id", h.StoreProduct)
	store.GET("/email-templates", h.StoreEmailTemplates)
}

// HealthCheck handles the health check endpoint
func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": h.ServiceName,
	})
}

// respondError renders err as {kind, message} and records it under
// errorType.
func respondError(c echo.Context, err error, errorType string) error {
	log := logger.FromEcho(c)
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("error_type", errorType), zap.Error(err))
	} else {
		log.Warn("Request rejected", zap.String("error_type", errorType), zap.Error(err))
	}
	metrics.RecordHandlerError(errorType)
	return c.JSON(status, echo.Map{
		"kind":    apperr.KindOf(err),
		"message": apperr.PublicMessage(err),
	})
}

func badRequest(c echo.Context, err error) error {
	return respondError(c, apperr.Wrap(apperr.KindValidation, "Invalid request data", err), "invalid_request")
}
