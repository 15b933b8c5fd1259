package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/catalog"
	"github.com/suteetoe/shopfleet/internal/middleware"
)

// Storefront returns the public profile of the store the Host resolves to
func (h *Handler) Storefront(c echo.Context) error {
	tenant, ok := middleware.TenantFromContext(c)
	if !ok {
		return respondError(c, apperr.NotFound("store not found"), "unknown_tenant")
	}
	branding, err := h.Templates.Branding(c.Request().Context())
	if err != nil {
		return respondError(c, err, "branding_failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"business_name": tenant.BusinessName,
		"subdomain":     tenant.Subdomain,
		"branding":      branding,
	})
}

// StoreProducts lists the store's active products
func (h *Handler) StoreProducts(c echo.Context) error {
	filter := productFilter(c)
	active := true
	filter.Active = &active
	products, err := h.Products.List(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err, "store_products_failed")
	}
	return c.JSON(http.StatusOK, products)
}

// StoreProduct returns one active product of the store
func (h *Handler) StoreProduct(c echo.Context) error {
	product, err := h.Products.Get(c.Request().Context(), c.Param("id"))
	if err == nil && !product.IsActive {
		err = apperr.NotFound("product not found")
	}
	if err != nil {
		return respondError(c, err, "store_product_failed")
	}
	return c.JSON(http.StatusOK, product)
}

// StoreEmailTemplates lists the email templates the store sends with
func (h *Handler) StoreEmailTemplates(c echo.Context) error {
	templates, err := catalog.EmailTemplates(c.Request().Context(), h.Client)
	if err != nil {
		return respondError(c, err, "store_templates_failed")
	}
	return c.JSON(http.StatusOK, templates)
}
