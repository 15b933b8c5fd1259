// Package storage defines the generic CRUD surface over named record
// collections. Engines (gormstore, memstore) implement Client; the tenancy
// interceptor decorates it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/suteetoe/shopfleet/internal/apperr"
)

// IDColumn is the primary key column of every collection.
const IDColumn = "id"

// NewID returns a fresh primary key.
func NewID() string {
	return uuid.NewString()
}

// Record is one row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value of field as a string, or "" when absent.
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	case []byte:
		return string(v)
	}
	return ""
}

// Bool returns field as a bool. Engines without a boolean type hand back
// integers.
func (r Record) Bool(field string) bool {
	switch v := deref(r[field]).(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	f, ok := ToFloat(r[field])
	return ok && f != 0
}

// Float returns field as a float64, or 0 when it is not numeric.
func (r Record) Float(field string) float64 {
	f, _ := ToFloat(r[field])
	return f
}

// Time returns field as a time.Time, or the zero time.
func (r Record) Time(field string) time.Time {
	t, _ := deref(r[field]).(time.Time)
	return t
}

// Order sorts results by one column.
type Order struct {
	Field string
	Desc  bool
}

// Query carries the arguments of read-many style calls.
type Query struct {
	Where   Cond
	OrderBy []Order
	Limit   int
	Offset  int
}

// AggOp is an aggregate function.
type AggOp string

const (
	AggCount AggOp = "count"
	AggSum   AggOp = "sum"
	AggAvg   AggOp = "avg"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
)

// Aggregation computes Op over Field for the rows matching Where.
type Aggregation struct {
	Where Cond
	Op    AggOp
	Field string
}

// Grouping counts rows matching Where grouped by the By columns.
type Grouping struct {
	Where Cond
	By    []string
}

// Group is one row of a GroupBy result.
type Group struct {
	Key   Record
	Count int64
}

// UpsertArgs updates the row matching Where, or creates Create when none does.
type UpsertArgs struct {
	Where  Cond
	Create Record
	Update Record
}

// Client is the generic CRUD surface every engine exposes.
type Client interface {
	// Create inserts data and returns the stored row. An id is generated
	// when data carries none.
	Create(ctx context.Context, model string, data Record) (Record, error)
	CreateMany(ctx context.Context, model string, data []Record) (int64, error)
	FindMany(ctx context.Context, model string, q Query) ([]Record, error)
	// FindUnique looks a row up by a unique key. It returns NotFound when no
	// row matches.
	FindUnique(ctx context.Context, model string, where Cond) (Record, error)
	// FindFirst returns the first row matching q. It returns NotFound when no
	// row matches.
	FindFirst(ctx context.Context, model string, q Query) (Record, error)
	Count(ctx context.Context, model string, where Cond) (int64, error)
	Aggregate(ctx context.Context, model string, a Aggregation) (float64, error)
	GroupBy(ctx context.Context, model string, g Grouping) ([]Group, error)
	// Update changes the single row matching where. It returns NotFound when
	// no row matches.
	Update(ctx context.Context, model string, where Cond, data Record) (Record, error)
	UpdateMany(ctx context.Context, model string, where Cond, data Record) (int64, error)
	Upsert(ctx context.Context, model string, args UpsertArgs) (Record, error)
	// Delete removes the single row matching where. It returns NotFound when
	// no row matches.
	Delete(ctx context.Context, model string, where Cond) (Record, error)
	DeleteMany(ctx context.Context, model string, where Cond) (int64, error)
	// Transaction runs fn against a client bound to one transaction; the
	// transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Client) error) error
}

// UniqueViolationError reports an insert or update rejected by a unique
// constraint of the storage engine.
type UniqueViolationError struct {
	Model string
	Field string
	Cause error
}

func (e *UniqueViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: unique constraint violated", e.Model)
	}
	return fmt.Sprintf("%s: unique constraint on %s violated", e.Model, e.Field)
}

func (e *UniqueViolationError) Unwrap() error { return e.Cause }

// AsUniqueViolation extracts a UniqueViolationError from err.
func AsUniqueViolation(err error) (*UniqueViolationError, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv, true
	}
	return nil, false
}

// ErrNotFound builds the NotFound error engines return for by-key calls.
func ErrNotFound(model string) error {
	return apperr.NotFound(model + ": record not found")
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
