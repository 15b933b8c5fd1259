// Package gormstore implements storage.Client over gorm. Collections are
// addressed by table name and rows travel as maps.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

const pgUniqueViolation = "23505"

// Store implements storage.Client over a gorm connection.
type Store struct {
	db *gorm.DB
}

var _ storage.Client = (*Store)(nil)

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) table(ctx context.Context, model string) *gorm.DB {
	return s.db.WithContext(ctx).Table(model)
}

func (s *Store) scoped(ctx context.Context, model string, where storage.Cond) *gorm.DB {
	tx := s.table(ctx, model)
	if where != nil {
		tx = tx.Clauses(clause.Where{Exprs: []clause.Expression{expression(where)}})
	}
	return tx
}

// expression translates a condition tree into gorm clauses. Compound nodes
// are rendered as explicit parenthesised groups: gorm's AndConditions and
// OrConditions re-associate single-child ORs with their siblings, which would
// let a caller clause escape the tenant filter merged next to it.
func expression(cond storage.Cond) clause.Expression {
	switch c := cond.(type) {
	case nil:
		return clause.Expr{SQL: "1 = 1"}
	case storage.Eq:
		return clause.Eq{Column: clause.Column{Name: c.Field}, Value: c.Value}
	case storage.IsNull:
		return clause.Eq{Column: clause.Column{Name: c.Field}, Value: nil}
	case storage.In:
		if len(c.Values) == 0 {
			return clause.Expr{SQL: "1 = 0"}
		}
		return clause.IN{Column: clause.Column{Name: c.Field}, Values: c.Values}
	case storage.Contains:
		return clause.Expr{
			SQL:  "LOWER(?) LIKE ?",
			Vars: []interface{}{clause.Column{Name: c.Field}, "%" + strings.ToLower(c.Substr) + "%"},
		}
	case storage.And:
		return group(c, " AND ", "1 = 1")
	case storage.Or:
		return group(c, " OR ", "1 = 0")
	case storage.Not:
		return clause.Expr{SQL: "NOT (?)", Vars: []interface{}{expression(c.Cond)}}
	}
	panic(fmt.Sprintf("gormstore: unknown condition %T", cond))
}

// group joins children with op inside one pair of parentheses. A single
// child is returned as is and an empty group becomes the identity of op.
func group(conds []storage.Cond, op, empty string) clause.Expression {
	switch len(conds) {
	case 0:
		return clause.Expr{SQL: empty}
	case 1:
		return expression(conds[0])
	}

	vars := make([]interface{}, len(conds))
	for i, c := range conds {
		vars[i] = expression(c)
	}
	return clause.Expr{
		SQL:  "(" + strings.Repeat("?"+op, len(conds)-1) + "?)",
		Vars: vars,
	}
}

// translate maps engine errors onto the storage error surface.
func translate(model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound(model)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &storage.UniqueViolationError{Model: model, Field: constraintField(model, pgErr.ConstraintName), Cause: err}
	}

	// sqlite: "UNIQUE constraint failed: tenants.subdomain"
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") {
		field := ""
		if i := strings.LastIndex(msg, "."); i >= 0 {
			field = strings.TrimSpace(msg[i+1:])
		}
		return &storage.UniqueViolationError{Model: model, Field: field, Cause: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &storage.UniqueViolationError{Model: model, Cause: err}
	}
	return err
}

// constraintField recovers the column from index names of the form
// idx_<table>_<column>.
func constraintField(model, constraint string) string {
	prefix := "idx_" + model + "_"
	if strings.HasPrefix(constraint, prefix) {
		return strings.TrimPrefix(constraint, prefix)
	}
	return constraint
}

func (s *Store) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	defer metrics.TrackDBOperation("insert")(time.Now())

	row := data.Clone()
	if row == nil {
		row = storage.Record{}
	}
	if row.String(storage.IDColumn) == "" {
		row[storage.IDColumn] = storage.NewID()
	}
	if err := s.table(ctx, model).Create(map[string]interface{}(row)).Error; err != nil {
		return nil, translate(model, err)
	}
	return row, nil
}

func (s *Store) CreateMany(ctx context.Context, model string, data []storage.Record) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	defer metrics.TrackDBOperation("insert")(time.Now())

	rows := make([]map[string]interface{}, 0, len(data))
	for _, r := range data {
		row := r.Clone()
		if row == nil {
			row = storage.Record{}
		}
		if row.String(storage.IDColumn) == "" {
			row[storage.IDColumn] = storage.NewID()
		}
		rows = append(rows, map[string]interface{}(row))
	}
	result := s.table(ctx, model).Create(rows)
	if result.Error != nil {
		return 0, translate(model, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) FindMany(ctx context.Context, model string, q storage.Query) ([]storage.Record, error) {
	defer metrics.TrackDBOperation("select")(time.Now())

	tx := s.scoped(ctx, model, q.Where)
	for _, o := range q.OrderBy {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, translate(model, err)
	}
	out := make([]storage.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.Record(r))
	}
	return out, nil
}

func (s *Store) FindUnique(ctx context.Context, model string, where storage.Cond) (storage.Record, error) {
	return s.FindFirst(ctx, model, storage.Query{Where: where})
}

func (s *Store) FindFirst(ctx context.Context, model string, q storage.Query) (storage.Record, error) {
	q.Limit = 1
	rows, err := s.FindMany(ctx, model, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound(model)
	}
	return rows[0], nil
}

func (s *Store) Count(ctx context.Context, model string, where storage.Cond) (int64, error) {
	defer metrics.TrackDBOperation("count")(time.Now())

	var n int64
	if err := s.scoped(ctx, model, where).Count(&n).Error; err != nil {
		return 0, translate(model, err)
	}
	return n, nil
}

func (s *Store) Aggregate(ctx context.Context, model string, a storage.Aggregation) (float64, error) {
	defer metrics.TrackDBOperation("aggregate")(time.Now())

	var fn string
	switch a.Op {
	case storage.AggCount:
		n, err := s.Count(ctx, model, a.Where)
		return float64(n), err
	case storage.AggSum:
		fn = "SUM"
	case storage.AggAvg:
		fn = "AVG"
	case storage.AggMin:
		fn = "MIN"
	case storage.AggMax:
		fn = "MAX"
	default:
		return 0, apperr.Validation("unsupported aggregate " + string(a.Op))
	}

	var out struct {
		AggValue *float64
	}
	err := s.scoped(ctx, model, a.Where).
		Select(fn+"(?) AS agg_value", clause.Column{Name: a.Field}).
		Scan(&out).Error
	if err != nil {
		return 0, translate(model, err)
	}
	if out.AggValue == nil {
		return 0, nil
	}
	return *out.AggValue, nil
}

func (s *Store) GroupBy(ctx context.Context, model string, g storage.Grouping) ([]storage.Group, error) {
	if len(g.By) == 0 {
		return nil, apperr.Validation("group by needs at least one column")
	}
	defer metrics.TrackDBOperation("select")(time.Now())

	cols := make([]interface{}, 0, len(g.By))
	marks := make([]string, 0, len(g.By))
	for _, field := range g.By {
		cols = append(cols, clause.Column{Name: field})
		marks = append(marks, "?")
	}
	list := strings.Join(marks, ", ")

	tx := s.scoped(ctx, model, g.Where).
		Select(list+", COUNT(*) AS group_count", cols...)
	for _, field := range g.By {
		tx = tx.Group(tx.Statement.Quote(field))
	}
	for _, field := range g.By {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: field}})
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, translate(model, err)
	}

	out := make([]storage.Group, 0, len(rows))
	for _, r := range rows {
		key := storage.Record{}
		for _, field := range g.By {
			key[field] = r[field]
		}
		count, _ := storage.ToFloat(r["group_count"])
		out = append(out, storage.Group{Key: key, Count: int64(count)})
	}
	return out, nil
}

// Update locates the row first so a missing key surfaces as NotFound and
// exactly one row changes.
func (s *Store) Update(ctx context.Context, model string, where storage.Cond, data storage.Record) (storage.Record, error) {
	var updated storage.Record
	err := s.Transaction(ctx, func(txc storage.Client) error {
		tx := txc.(*Store)
		row, err := tx.FindFirst(ctx, model, storage.Query{Where: where})
		if err != nil {
			return err
		}
		key := storage.Eq{Field: storage.IDColumn, Value: row[storage.IDColumn]}
		if len(data) > 0 {
			defer metrics.TrackDBOperation("update")(time.Now())
			if err := tx.scoped(ctx, model, key).Updates(map[string]interface{}(data)).Error; err != nil {
				return translate(model, err)
			}
		}
		updated, err = tx.FindFirst(ctx, model, storage.Query{Where: key})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) UpdateMany(ctx context.Context, model string, where storage.Cond, data storage.Record) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	defer metrics.TrackDBOperation("update")(time.Now())

	tx := s.scoped(ctx, model, where)
	if where == nil {
		tx = tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	result := tx.Updates(map[string]interface{}(data))
	if result.Error != nil {
		return 0, translate(model, result.Error)
	}
	return result.RowsAffected, nil
}

// Upsert is find-then-write inside one transaction. Concurrent inserts of
// the same unique key still surface as UniqueViolationError.
func (s *Store) Upsert(ctx context.Context, model string, args storage.UpsertArgs) (storage.Record, error) {
	var out storage.Record
	err := s.Transaction(ctx, func(txc storage.Client) error {
		tx := txc.(*Store)
		_, err := tx.FindFirst(ctx, model, storage.Query{Where: args.Where})
		switch {
		case err == nil:
			out, err = tx.Update(ctx, model, args.Where, args.Update)
			return err
		case storage.IsNotFound(err):
			out, err = tx.Create(ctx, model, args.Create)
			return err
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, model string, where storage.Cond) (storage.Record, error) {
	var deleted storage.Record
	err := s.Transaction(ctx, func(txc storage.Client) error {
		tx := txc.(*Store)
		row, err := tx.FindFirst(ctx, model, storage.Query{Where: where})
		if err != nil {
			return err
		}
		defer metrics.TrackDBOperation("delete")(time.Now())
		key := storage.Eq{Field: storage.IDColumn, Value: row[storage.IDColumn]}
		if err := tx.scoped(ctx, model, key).Delete(map[string]interface{}{}).Error; err != nil {
			return translate(model, err)
		}
		deleted = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Store) DeleteMany(ctx context.Context, model string, where storage.Cond) (int64, error) {
	defer metrics.TrackDBOperation("delete")(time.Now())

	tx := s.scoped(ctx, model, where)
	if where == nil {
		tx = tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	result := tx.Delete(map[string]interface{}{})
	if result.Error != nil {
		return 0, translate(model, result.Error)
	}
	return result.RowsAffected, nil
}

// Transaction runs fn in a gorm transaction. Nested calls become savepoints.
func (s *Store) Transaction(ctx context.Context, fn func(tx storage.Client) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
