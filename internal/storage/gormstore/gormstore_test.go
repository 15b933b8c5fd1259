package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return New(db)
}

func product(tenantID, name string, price float64) storage.Record {
	now := time.Now().UTC()
	return storage.Record{
		"tenant_id":  tenantID,
		"name":       name,
		"sku":        name,
		"price":      price,
		"created_at": now,
		"updated_at": now,
	}
}

func TestCreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "products", product("a", "Lamp", 20))
	require.NoError(t, err)
	id := created.String("id")
	require.NotEmpty(t, id)

	_, err = s.CreateMany(ctx, "products", []storage.Record{product("a", "Desk", 150), product("b", "Chair", 80)})
	require.NoError(t, err)

	found, err := s.FindUnique(ctx, "products", storage.Eq{Field: "id", Value: id})
	require.NoError(t, err)
	assert.Equal(t, "Lamp", found.String("name"))

	rows, err := s.FindMany(ctx, "products", storage.Query{
		Where:   storage.Eq{Field: "tenant_id", Value: "a"},
		OrderBy: []storage.Order{{Field: "price", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Desk", rows[0].String("name"))

	rows, err = s.FindMany(ctx, "products", storage.Query{Where: storage.Contains{Field: "name", Substr: "CHA"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].String("tenant_id"))

	_, err = s.FindFirst(ctx, "products", storage.Query{Where: storage.Eq{Field: "name", Value: "Sofa"}})
	assert.True(t, storage.IsNotFound(err))
}

func TestOrAndNullFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	shared := storage.Record{"key": "welcome", "tenant_id": nil, "body": "default"}
	_, err := s.Create(ctx, "email_templates", shared)
	require.NoError(t, err)
	_, err = s.Create(ctx, "email_templates", storage.Record{"key": "welcome", "tenant_id": "a", "body": "mine"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "email_templates", storage.Record{"key": "welcome", "tenant_id": "b", "body": "theirs"})
	require.NoError(t, err)

	visible := storage.All(
		storage.Eq{Field: "key", Value: "welcome"},
		storage.Or{storage.Eq{Field: "tenant_id", Value: "a"}, storage.IsNull{Field: "tenant_id"}},
	)
	n, err := s.Count(ctx, "email_templates", visible)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, "email_templates", storage.Not{Cond: storage.IsNull{Field: "tenant_id"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, "email_templates", storage.In{Field: "tenant_id", Values: []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAggregateAndGroupBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateMany(ctx, "products", []storage.Record{
		product("a", "Lamp", 20), product("a", "Desk", 150), product("b", "Chair", 80),
	})
	require.NoError(t, err)

	sum, err := s.Aggregate(ctx, "products", storage.Aggregation{
		Where: storage.Eq{Field: "tenant_id", Value: "a"},
		Op:    storage.AggSum,
		Field: "price",
	})
	require.NoError(t, err)
	assert.InDelta(t, 170.0, sum, 0.001)

	none, err := s.Aggregate(ctx, "products", storage.Aggregation{
		Where: storage.Eq{Field: "tenant_id", Value: "z"},
		Op:    storage.AggMax,
		Field: "price",
	})
	require.NoError(t, err)
	assert.Zero(t, none)

	groups, err := s.GroupBy(ctx, "products", storage.Grouping{By: []string{"tenant_id"}})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Key.String("tenant_id"))
	assert.Equal(t, int64(2), groups[0].Count)
}

func TestUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := storage.Record{"business_name": "Acme", "subdomain": "acme", "country_code": "US", "settings": model.JSONMap{}}

	_, err := s.Create(ctx, "tenants", tenant)
	require.NoError(t, err)

	dup := tenant.Clone()
	delete(dup, "id")
	_, err = s.Create(ctx, "tenants", dup)
	uv, ok := storage.AsUniqueViolation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "subdomain", uv.Field)
}

func TestUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "products", product("a", "Lamp", 20))
	require.NoError(t, err)
	key := storage.Eq{Field: "id", Value: created.String("id")}

	updated, err := s.Update(ctx, "products", key, storage.Record{"price": 25.0})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, updated.Float("price"), 0.001)

	_, err = s.Update(ctx, "products", storage.Eq{Field: "id", Value: "missing"}, storage.Record{"price": 1})
	assert.True(t, storage.IsNotFound(err))

	n, err := s.UpdateMany(ctx, "products", storage.Eq{Field: "tenant_id", Value: "a"}, storage.Record{"stock": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := s.Delete(ctx, "products", key)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", deleted.String("name"))

	_, err = s.Delete(ctx, "products", key)
	assert.True(t, storage.IsNotFound(err))
}

func TestUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	where := storage.Eq{Field: "email", Value: "owner@acme.test"}

	created, err := s.Upsert(ctx, "users", storage.UpsertArgs{
		Where:  where,
		Create: storage.Record{"email": "owner@acme.test", "role": model.RoleTenantAdmin},
	})
	require.NoError(t, err)

	updated, err := s.Upsert(ctx, "users", storage.UpsertArgs{
		Where:  where,
		Create: storage.Record{"email": "owner@acme.test"},
		Update: storage.Record{"tenant_id": "t-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.String("id"), updated.String("id"))
	assert.Equal(t, "t-1", updated.String("tenant_id"))
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx storage.Client) error {
		if _, err := tx.Create(ctx, "products", product("a", "Lamp", 20)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.Count(ctx, "products", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInterceptorOverGorm(t *testing.T) {
	client := tenancy.New(newTestStore(t), tenancy.DefaultPolicy())
	ctxA := tenantctx.MustBind(context.Background(), "a")
	ctxB := tenantctx.MustBind(context.Background(), "b")

	created, err := client.Create(ctxA, "products", product("", "Lamp", 20))
	require.NoError(t, err)
	assert.Equal(t, "a", created.String("tenant_id"))

	rows, err := client.FindMany(ctxB, "products", storage.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = client.Delete(ctxB, "products", storage.Eq{Field: "id", Value: created.String("id")})
	assert.True(t, storage.IsNotFound(err))

	_, err = client.Count(context.Background(), "products", nil)
	assert.True(t, errors.Is(err, apperr.ErrIsolationViolation))
}

func TestExpressionKeepsCallerClausesGrouped(t *testing.T) {
	s := newTestStore(t)

	cases := []struct {
		name  string
		where storage.Cond
		want  string
	}{
		{
			name:  "single or",
			where: storage.And{storage.Or{storage.Eq{Field: "name", Value: "Secret"}}, storage.Eq{Field: "tenant_id", Value: "b"}},
			want:  "SELECT * FROM `products` WHERE (`name` = ? AND `tenant_id` = ?)",
		},
		{
			name: "many or",
			where: storage.And{
				storage.Or{storage.Eq{Field: "name", Value: "Secret"}, storage.Eq{Field: "name", Value: "Lamp"}},
				storage.Eq{Field: "tenant_id", Value: "b"},
			},
			want: "SELECT * FROM `products` WHERE ((`name` = ? OR `name` = ?) AND `tenant_id` = ?)",
		},
		{
			name:  "not",
			where: storage.And{storage.Not{Cond: storage.Eq{Field: "name", Value: "Open"}}, storage.Eq{Field: "tenant_id", Value: "b"}},
			want:  "SELECT * FROM `products` WHERE (NOT (`name` = ?) AND `tenant_id` = ?)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rows []map[string]interface{}
			stmt := s.db.Session(&gorm.Session{DryRun: true}).
				Table("products").
				Clauses(clause.Where{Exprs: []clause.Expression{expression(tc.where)}}).
				Find(&rows).Statement
			assert.Equal(t, tc.want, stmt.SQL.String())
		})
	}
}

func TestInterceptorOverGormCallerFilters(t *testing.T) {
	shapes := []struct {
		name  string
		where storage.Cond
	}{
		{"single or", storage.Or{storage.Eq{Field: "name", Value: "Secret"}}},
		{"many or", storage.Or{storage.Eq{Field: "name", Value: "Secret"}, storage.Eq{Field: "name", Value: "Lamp"}}},
		{"not", storage.Not{Cond: storage.Eq{Field: "name", Value: "Open"}}},
		{"nested and or", storage.And{storage.Contains{Field: "name", Substr: "e"}, storage.Or{storage.Eq{Field: "name", Value: "Secret"}}}},
		{"other tenant id", storage.Eq{Field: "tenant_id", Value: "a"}},
		{"other tenant or null", storage.Or{storage.Eq{Field: "tenant_id", Value: "a"}, storage.IsNull{Field: "tenant_id"}}},
		{"name of other tenant row", storage.Eq{Field: "name", Value: "Secret"}},
	}

	for _, sh := range shapes {
		t.Run(sh.name, func(t *testing.T) {
			client := tenancy.New(newTestStore(t), tenancy.DefaultPolicy())
			ctxA := tenantctx.MustBind(context.Background(), "a")
			ctxB := tenantctx.MustBind(context.Background(), "b")

			secret, err := client.Create(ctxA, "products", product("", "Secret", 100))
			require.NoError(t, err)
			_, err = client.Create(ctxA, "products", product("", "Lamp", 20))
			require.NoError(t, err)
			_, err = client.Create(ctxB, "products", product("", "Open", 5))
			require.NoError(t, err)

			rows, err := client.FindMany(ctxB, "products", storage.Query{Where: sh.where})
			require.NoError(t, err)
			for _, r := range rows {
				assert.Equal(t, "b", r.String("tenant_id"))
			}

			n, err := client.Count(ctxB, "products", sh.where)
			require.NoError(t, err)
			assert.Equal(t, int64(len(rows)), n)

			sum, err := client.Aggregate(ctxB, "products", storage.Aggregation{Where: sh.where, Op: storage.AggSum, Field: "price"})
			require.NoError(t, err)
			assert.LessOrEqual(t, sum, 5.0)

			_, err = client.UpdateMany(ctxB, "products", sh.where, storage.Record{"stock": 99})
			require.NoError(t, err)

			byKey := storage.And{storage.Eq{Field: "id", Value: secret.String("id")}, sh.where}
			_, err = client.Update(ctxB, "products", byKey, storage.Record{"price": 1})
			assert.True(t, storage.IsNotFound(err))
			_, err = client.Delete(ctxB, "products", byKey)
			assert.True(t, storage.IsNotFound(err))

			_, err = client.DeleteMany(ctxB, "products", sh.where)
			require.NoError(t, err)

			owned, err := client.FindMany(ctxA, "products", storage.Query{})
			require.NoError(t, err)
			require.Len(t, owned, 2)
			for _, r := range owned {
				assert.Equal(t, "a", r.String("tenant_id"))
				assert.NotEqual(t, 99, int(r.Float("stock")))
			}
			got, err := client.FindFirst(ctxA, "products", storage.Query{Where: storage.Eq{Field: "id", Value: secret.String("id")}})
			require.NoError(t, err)
			assert.Equal(t, 100.0, got.Float("price"))
		})
	}
}

func TestAllowNullCallerFilterOverGorm(t *testing.T) {
	client := tenancy.New(newTestStore(t), tenancy.DefaultPolicy())
	ctxA := tenantctx.MustBind(context.Background(), "a")
	ctxB := tenantctx.MustBind(context.Background(), "b")
	now := time.Now().UTC()

	_, err := client.Create(ctxA, "email_templates", storage.Record{"key": "welcome", "subject": "A only", "created_at": now, "updated_at": now})
	require.NoError(t, err)
	_, err = client.Create(context.Background(), "email_templates", storage.Record{"key": "welcome", "subject": "Shared", "created_at": now, "updated_at": now})
	require.NoError(t, err)

	rows, err := client.FindMany(ctxB, "email_templates", storage.Query{Where: storage.Or{storage.Eq{Field: "key", Value: "welcome"}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Shared", rows[0].String("subject"))
}
