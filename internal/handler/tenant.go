package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/suteetoe/shopfleet/internal/registry"
)

type tenantPatch struct {
	BusinessName *string        `json:"business_name"`
	CountryCode  *string        `json:"country_code"`
	Settings     map[string]any `json:"settings"`
}

// GetTenant returns the caller's tenant
func (h *Handler) GetTenant(c echo.Context) error {
	tenant, err := h.Registry.Current(c.Request().Context())
	if err != nil {
		return respondError(c, err, "tenant_get_failed")
	}
	return c.JSON(http.StatusOK, tenant)
}

// UpdateTenant patches the caller's tenant
func (h *Handler) UpdateTenant(c echo.Context) error {
	var req tenantPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	tenant, err := h.Registry.UpdateSettings(c.Request().Context(), registry.Patch{
		BusinessName: req.BusinessName,
		CountryCode:  req.CountryCode,
		Settings:     req.Settings,
	})
	if err != nil {
		return respondError(c, err, "tenant_update_failed")
	}
	return c.JSON(http.StatusOK, tenant)
}

// SetCustomDomain sets or clears the caller's custom domain
func (h *Handler) SetCustomDomain(c echo.Context) error {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	tenant, err := h.Registry.SetCustomDomain(c.Request().Context(), req.Domain)
	if err != nil {
		return respondError(c, err, "tenant_domain_failed")
	}
	return c.JSON(http.StatusOK, tenant)
}

// CatalogStats summarizes the caller's products
func (h *Handler) CatalogStats(c echo.Context) error {
	stats, err := h.Products.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err, "catalog_stats_failed")
	}
	return c.JSON(http.StatusOK, stats)
}
