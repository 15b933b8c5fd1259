package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/registry"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// ListTenants handles the platform tenant listing
func (h *Handler) ListTenants(c echo.Context) error {
	log := logger.FromEcho(c)

	filter := registry.ListFilter{Search: c.QueryParam("q")}
	if v := c.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			log.Warn("Invalid is_active parameter", zap.String("value", v), zap.Error(err))
		} else {
			filter.Active = &active
		}
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	tenants, err := h.Registry.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err, "tenant_list_failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// ActivateTenant handles tenant reactivation
func (h *Handler) ActivateTenant(c echo.Context) error {
	tenant, err := h.Registry.Activate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "tenant_activate_failed")
	}
	return c.JSON(http.StatusOK, tenant)
}

// DeactivateTenant handles tenant deactivation
func (h *Handler) DeactivateTenant(c echo.Context) error {
	tenant, err := h.Registry.Deactivate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "tenant_deactivate_failed")
	}
	return c.JSON(http.StatusOK, tenant)
}
