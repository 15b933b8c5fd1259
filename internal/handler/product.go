package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/catalog"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

func productFilter(c echo.Context) catalog.ProductFilter {
	log := logger.FromEcho(c)
	filter := catalog.ProductFilter{Search: c.QueryParam("q")}
	if v := c.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err == nil {
			filter.Active = &active
		} else {
			log.Warn("Invalid is_active parameter", zap.String("value", v), zap.Error(err))
		}
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		filter.Offset = v
	}
	return filter
}

// ListProducts handles retrieving the tenant's products with optional filtering
func (h *Handler) ListProducts(c echo.Context) error {
	products, err := h.Products.List(c.Request().Context(), productFilter(c))
	if err != nil {
		return respondError(c, err, "product_list_failed")
	}
	return c.JSON(http.StatusOK, products)
}

// GetProduct handles retrieving a single product by ID
func (h *Handler) GetProduct(c echo.Context) error {
	product, err := h.Products.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "product_get_failed")
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct handles creating a new product
func (h *Handler) CreateProduct(c echo.Context) error {
	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	product, err := h.Products.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err, "product_create_failed")
	}
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles updating an existing product
func (h *Handler) UpdateProduct(c echo.Context) error {
	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	product, err := h.Products.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return respondError(c, err, "product_update_failed")
	}
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct handles deleting a product
func (h *Handler) DeleteProduct(c echo.Context) error {
	if err := h.Products.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err, "product_delete_failed")
	}
	return c.NoContent(http.StatusNoContent)
}
