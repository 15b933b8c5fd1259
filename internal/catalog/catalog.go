// Package catalog manages the products and email templates of the bound
// tenant. It relies on the tenant-scoped storage client for isolation and
// never filters by tenant itself.
package catalog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// MsgSKUTaken is returned when a product SKU is already used by the tenant.
const MsgSKUTaken = "Product with this SKU already exists"

// ProductInput creates or updates a product. Nil fields keep their value on
// update.
type ProductInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	SKU         *string  `json:"sku"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	IsActive    *bool    `json:"is_active"`
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Active *bool
	Search string
	Limit  int
	Offset int
}

// Stats summarizes the tenant's catalog.
type Stats struct {
	Products     int64            `json:"products"`
	ByStatus     map[string]int64 `json:"by_status"`
	TotalStock   float64          `json:"total_stock"`
	AveragePrice float64          `json:"average_price"`
	HighestPrice float64          `json:"highest_price"`
}

// Products reads and writes products through a tenant-scoped client.
type Products struct {
	client storage.Client
	now    func() time.Time
}

// NewProducts creates a Products service.
func NewProducts(client storage.Client) *Products {
	return &Products{client: client, now: time.Now}
}

func productFromRecord(r storage.Record) *model.Product {
	return &model.Product{
		ID:          r.String(storage.IDColumn),
		TenantID:    r.String(tenancy.TenantColumn),
		Name:        r.String("name"),
		Description: r.String("description"),
		SKU:         r.String("sku"),
		Price:       r.Float("price"),
		Stock:       int(r.Float("stock")),
		IsActive:    r.Bool("is_active"),
		CreatedAt:   r.Time("created_at"),
		UpdatedAt:   r.Time("updated_at"),
	}
}

func validate(in ProductInput, create bool) error {
	if create && (in.Name == nil || in.SKU == nil || in.Price == nil) {
		return apperr.Validation("name, sku and price are required")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return apperr.Validation("name is required")
	}
	if in.SKU != nil && strings.TrimSpace(*in.SKU) == "" {
		return apperr.Validation("sku is required")
	}
	if in.Price != nil && *in.Price <= 0 {
		return apperr.Validation("price must be greater than 0")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return apperr.Validation("stock may not be negative")
	}
	return nil
}

func (in ProductInput) record() storage.Record {
	data := storage.Record{}
	if in.Name != nil {
		data["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		data["description"] = *in.Description
	}
	if in.SKU != nil {
		data["sku"] = strings.TrimSpace(*in.SKU)
	}
	if in.Price != nil {
		data["price"] = *in.Price
	}
	if in.Stock != nil {
		data["stock"] = *in.Stock
	}
	if in.IsActive != nil {
		data["is_active"] = *in.IsActive
	}
	return data
}

// skuTaken reports whether another product of the tenant uses sku.
func (p *Products) skuTaken(ctx context.Context, sku, exceptID string) (bool, error) {
	where := storage.All(
		storage.Eq{Field: "sku", Value: sku},
		notID(exceptID),
	)
	n, err := p.client.Count(ctx, tenancy.ModelProducts, where)
	return n > 0, err
}

func notID(id string) storage.Cond {
	if id == "" {
		return nil
	}
	return storage.Not{Cond: storage.Eq{Field: storage.IDColumn, Value: id}}
}

// List returns the tenant's products, newest first.
func (p *Products) List(ctx context.Context, f ProductFilter) ([]*model.Product, error) {
	var conds []storage.Cond
	if f.Active != nil {
		conds = append(conds, storage.Eq{Field: "is_active", Value: *f.Active})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conds = append(conds, storage.Or{
			storage.Contains{Field: "name", Substr: s},
			storage.Contains{Field: "sku", Substr: s},
		})
	}
	rows, err := p.client.FindMany(ctx, tenancy.ModelProducts, storage.Query{
		Where:   storage.All(conds...),
		OrderBy: []storage.Order{{Field: "created_at", Desc: true}},
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, productFromRecord(row))
	}
	return out, nil
}

// Get returns one product of the tenant.
func (p *Products) Get(ctx context.Context, id string) (*model.Product, error) {
	row, err := p.client.FindUnique(ctx, tenancy.ModelProducts, storage.Eq{Field: storage.IDColumn, Value: id})
	if err != nil {
		return nil, err
	}
	return productFromRecord(row), nil
}

// Create adds a product. New products are active unless in says otherwise.
func (p *Products) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	if err := validate(in, true); err != nil {
		return nil, err
	}
	data := in.record()
	taken, err := p.skuTaken(ctx, data.String("sku"), "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict(MsgSKUTaken)
	}

	if _, ok := data["is_active"]; !ok {
		data["is_active"] = true
	}
	if _, ok := data["stock"]; !ok {
		data["stock"] = 0
	}
	if _, ok := data["description"]; !ok {
		data["description"] = ""
	}
	now := p.now().UTC()
	data["created_at"], data["updated_at"] = now, now

	row, err := p.client.Create(ctx, tenancy.ModelProducts, data)
	if err != nil {
		return nil, err
	}
	product := productFromRecord(row)
	logger.FromContext(ctx).Info("Product created successfully",
		zap.String("product_id", product.ID),
		zap.String("sku", product.SKU))
	return product, nil
}

// Update changes a product of the tenant.
func (p *Products) Update(ctx context.Context, id string, in ProductInput) (*model.Product, error) {
	if err := validate(in, false); err != nil {
		return nil, err
	}
	data := in.record()
	if sku, ok := data["sku"].(string); ok {
		taken, err := p.skuTaken(ctx, sku, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict(MsgSKUTaken)
		}
	}
	if len(data) == 0 {
		return p.Get(ctx, id)
	}
	data["updated_at"] = p.now().UTC()

	row, err := p.client.Update(ctx, tenancy.ModelProducts, storage.Eq{Field: storage.IDColumn, Value: id}, data)
	if err != nil {
		return nil, err
	}
	return productFromRecord(row), nil
}

// Delete removes a product of the tenant.
func (p *Products) Delete(ctx context.Context, id string) error {
	_, err := p.client.Delete(ctx, tenancy.ModelProducts, storage.Eq{Field: storage.IDColumn, Value: id})
	if err == nil {
		logger.FromContext(ctx).Info("Product deleted successfully", zap.String("product_id", id))
	}
	return err
}

// Stats summarizes the tenant's products.
func (p *Products) Stats(ctx context.Context) (*Stats, error) {
	n, err := p.client.Count(ctx, tenancy.ModelProducts, nil)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Products: n, ByStatus: map[string]int64{"active": 0, "inactive": 0}}
	if n == 0 {
		return stats, nil
	}

	groups, err := p.client.GroupBy(ctx, tenancy.ModelProducts, storage.Grouping{By: []string{"is_active"}})
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Key.Bool("is_active") {
			stats.ByStatus["active"] += g.Count
		} else {
			stats.ByStatus["inactive"] += g.Count
		}
	}

	for _, agg := range []struct {
		op  storage.AggOp
		fld string
		dst *float64
	}{
		{storage.AggSum, "stock", &stats.TotalStock},
		{storage.AggAvg, "price", &stats.AveragePrice},
		{storage.AggMax, "price", &stats.HighestPrice},
	} {
		v, err := p.client.Aggregate(ctx, tenancy.ModelProducts, storage.Aggregation{Op: agg.op, Field: agg.fld})
		if err != nil {
			return nil, err
		}
		*agg.dst = v
	}
	return stats, nil
}

// EmailTemplate is an email template visible to the tenant.
type EmailTemplate struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Subject string `json:"subject"`
	Shared  bool   `json:"shared"`
}

// EmailTemplates lists the tenant's email templates together with the
// platform's shared ones.
func EmailTemplates(ctx context.Context, client storage.Client) ([]EmailTemplate, error) {
	rows, err := client.FindMany(ctx, tenancy.ModelEmailTemplates, storage.Query{
		OrderBy: []storage.Order{{Field: "key"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]EmailTemplate, 0, len(rows))
	for _, row := range rows {
		out = append(out, EmailTemplate{
			ID:      row.String(storage.IDColumn),
			Key:     row.String("key"),
			Subject: row.String("subject"),
			Shared:  row.String(tenancy.TenantColumn) == "",
		})
	}
	return out, nil
}
