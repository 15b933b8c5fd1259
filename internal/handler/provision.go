package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/provisioning"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// Provision handles tenant signup
func (h *Handler) Provision(c echo.Context) error {
	var req provisioning.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	res, err := h.Provisioning.Provision(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err, "provisioning_failed")
	}

	logger.FromEcho(c).Info("Provisioning request completed", zap.String("tenant_id", res.TenantID))
	return c.JSON(http.StatusCreated, res)
}
