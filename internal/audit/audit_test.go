package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/storage/memstore"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
)

func TestRecorderWritesTenantWrites(t *testing.T) {
	store := memstore.New()
	rec := NewRecorder(store, 16)
	client := tenancy.New(store, tenancy.DefaultPolicy(), tenancy.WithAuditHook(rec.Hook()))

	ctx := WithActor(tenantctx.MustBind(context.Background(), "tenant-a"), "u1")
	created, err := client.Create(ctx, tenancy.ModelProducts, storage.Record{"name": "Boots"})
	require.NoError(t, err)
	_, err = client.FindMany(ctx, tenancy.ModelProducts, storage.Query{})
	require.NoError(t, err)
	_, err = client.Delete(ctx, tenancy.ModelProducts, storage.Eq{Field: storage.IDColumn, Value: created.String(storage.IDColumn)})
	require.NoError(t, err)

	platform, err := tenantctx.WithPlatformBypass(context.Background(), "ops")
	require.NoError(t, err)
	_, err = client.Create(platform, tenancy.ModelUsers, storage.Record{"email": "x@y.test"})
	require.NoError(t, err)

	rec.Close()

	entries := store.Rows(tenancy.ModelAuditEntries)
	require.Len(t, entries, 2)
	assert.Equal(t, "products.create", entries[0].String("action"))
	assert.Equal(t, "products.delete", entries[1].String("action"))
	for _, e := range entries {
		assert.Equal(t, "tenant-a", e.String(tenancy.TenantColumn))
		assert.Equal(t, "u1", e.String("actor"))
	}
}

func TestActorDefaultsToSystem(t *testing.T) {
	assert.Equal(t, "system", Actor(context.Background()))
	assert.Equal(t, "u7", Actor(WithActor(context.Background(), "u7")))
}

func TestCloseIsIdempotent(t *testing.T) {
	rec := NewRecorder(memstore.New(), 1)
	rec.Close()
	rec.Close()
}
