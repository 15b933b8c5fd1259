package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/storage/memstore"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
)

func TestResolveFallsBackToCreatedDefault(t *testing.T) {
	store := memstore.New(memstore.DefaultUniques()...)
	r := NewResolver(store)

	got, err := r.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, got.Key)
	assert.True(t, got.IsDefault)
	assert.Len(t, store.Rows(Collection), 1)

	again, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
	assert.Len(t, store.Rows(Collection), 1)
}

func TestResolveByKeyAndID(t *testing.T) {
	store := memstore.New(memstore.DefaultUniques()...)
	r := NewResolver(store)
	ctx := context.Background()

	n, err := r.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Catalog), n)

	n, err = r.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	byKey, err := r.Resolve(ctx, "outdoor")
	require.NoError(t, err)
	assert.Equal(t, "forest", byKey.ColorPreset)

	byID, err := r.Resolve(ctx, byKey.ID)
	require.NoError(t, err)
	assert.Equal(t, "outdoor", byID.Key)
}

func TestBrandingFor(t *testing.T) {
	b := BrandingFor(&model.Template{Key: "tech", ColorPreset: "midnight", FontPreset: "modern"})
	assert.Equal(t, "#1e293b", b.PrimaryColor)
	assert.Equal(t, "Inter, sans-serif", b.FontFamily)

	fallback := BrandingFor(&model.Template{Key: "odd", ColorPreset: "neon", FontPreset: "comic"})
	assert.Equal(t, colorPresets["default"], fallback.PrimaryColor)
	assert.Equal(t, fontPresets["default"], fallback.FontFamily)
}

func TestBrandingOfBoundTenant(t *testing.T) {
	client := tenancy.New(memstore.New(), tenancy.DefaultPolicy())
	r := NewResolver(client)
	ctxA := tenantctx.MustBind(context.Background(), "tenant-a")

	got, err := r.Branding(ctxA)
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, got.TemplateKey)

	_, err = client.Create(ctxA, tenancy.ModelBrandings, storage.Record{
		"template_key": "outdoor", "primary_color": "#16a34a", "font_family": "Inter, sans-serif",
	})
	require.NoError(t, err)

	got, err = r.Branding(ctxA)
	require.NoError(t, err)
	assert.Equal(t, "outdoor", got.TemplateKey)

	other, err := r.Branding(tenantctx.MustBind(context.Background(), "tenant-b"))
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, other.TemplateKey)

	_, err = r.Branding(context.Background())
	assert.Error(t, err)
}
