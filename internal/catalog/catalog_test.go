package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/storage/memstore"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
)

func ptr[T any](v T) *T { return &v }

func newProducts() (*Products, storage.Client) {
	client := tenancy.New(memstore.New(), tenancy.DefaultPolicy())
	return NewProducts(client), client
}

func boots() ProductInput {
	return ProductInput{Name: ptr("Trail Boots"), SKU: ptr("BOOT-1"), Price: ptr(120.0), Stock: ptr(4)}
}

func TestProductLifecycle(t *testing.T) {
	products, _ := newProducts()
	ctx := tenantctx.MustBind(context.Background(), "tenant-a")

	created, err := products.Create(ctx, boots())
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", created.TenantID)
	assert.True(t, created.IsActive)

	_, err = products.Create(ctx, boots())
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	updated, err := products.Update(ctx, created.ID, ProductInput{Price: ptr(99.5), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, 99.5, updated.Price)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "BOOT-1", updated.SKU)

	active, err := products.List(ctx, ProductFilter{Active: ptr(true)})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, products.Delete(ctx, created.ID))
	_, err = products.Get(ctx, created.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestProductsAreTenantScoped(t *testing.T) {
	products, _ := newProducts()
	ctxA := tenantctx.MustBind(context.Background(), "tenant-a")
	ctxB := tenantctx.MustBind(context.Background(), "tenant-b")

	a, err := products.Create(ctxA, boots())
	require.NoError(t, err)
	// The same SKU is free for another tenant.
	_, err = products.Create(ctxB, boots())
	require.NoError(t, err)

	_, err = products.Get(ctxB, a.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = products.Update(ctxB, a.ID, ProductInput{Price: ptr(1.0)})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(products.Delete(ctxB, a.ID), apperr.ErrNotFound))

	listB, err := products.List(ctxB, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, listB, 1)
	assert.Equal(t, "tenant-b", listB[0].TenantID)

	_, err = products.List(context.Background(), ProductFilter{})
	assert.True(t, errors.Is(err, apperr.ErrIsolationViolation))
}

func TestProductValidation(t *testing.T) {
	products, _ := newProducts()
	ctx := tenantctx.MustBind(context.Background(), "tenant-a")

	_, err := products.Create(ctx, ProductInput{Name: ptr("No SKU"), Price: ptr(1.0)})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	in := boots()
	in.Price = ptr(0.0)
	_, err = products.Create(ctx, in)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestStats(t *testing.T) {
	products, _ := newProducts()
	ctx := tenantctx.MustBind(context.Background(), "tenant-a")

	empty, err := products.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Products)

	_, err = products.Create(ctx, boots())
	require.NoError(t, err)
	_, err = products.Create(ctx, ProductInput{Name: ptr("Socks"), SKU: ptr("SOCK-1"), Price: ptr(10.0), Stock: ptr(6), IsActive: ptr(false)})
	require.NoError(t, err)
	_, err = products.Create(tenantctx.MustBind(context.Background(), "tenant-b"), ProductInput{Name: ptr("Tent"), SKU: ptr("TENT"), Price: ptr(900.0), Stock: ptr(100)})
	require.NoError(t, err)

	stats, err := products.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Products)
	assert.Equal(t, int64(1), stats.ByStatus["active"])
	assert.Equal(t, int64(1), stats.ByStatus["inactive"])
	assert.Equal(t, 10.0, stats.TotalStock)
	assert.Equal(t, 65.0, stats.AveragePrice)
	assert.Equal(t, 120.0, stats.HighestPrice)
}

func TestEmailTemplatesIncludeShared(t *testing.T) {
	_, client := newProducts()
	ctx := context.Background()

	_, err := client.Create(ctx, tenancy.ModelEmailTemplates, storage.Record{"key": "welcome", "subject": "Welcome"})
	require.NoError(t, err)
	ctxA := tenantctx.MustBind(ctx, "tenant-a")
	_, err = client.Create(ctxA, tenancy.ModelEmailTemplates, storage.Record{"key": "order", "subject": "Your order"})
	require.NoError(t, err)
	_, err = client.Create(tenantctx.MustBind(ctx, "tenant-b"), tenancy.ModelEmailTemplates, storage.Record{"key": "promo", "subject": "Sale"})
	require.NoError(t, err)

	got, err := EmailTemplates(ctxA, client)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "order", got[0].Key)
	assert.False(t, got[0].Shared)
	assert.Equal(t, "welcome", got[1].Key)
	assert.True(t, got[1].Shared)
}
