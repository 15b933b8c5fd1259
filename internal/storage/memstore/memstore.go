// Package memstore is an in-memory storage.Client used by tests and local
// demos. Transactions hold the store lock for their whole duration and roll
// back by restoring a snapshot.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/storage"
)

type state struct {
	tables map[string][]storage.Record
	unique map[string][]string
}

func (s *state) snapshot() map[string][]storage.Record {
	out := make(map[string][]storage.Record, len(s.tables))
	for name, rows := range s.tables {
		cp := make([]storage.Record, len(rows))
		for i, r := range rows {
			cp[i] = r.Clone()
		}
		out[name] = cp
	}
	return out
}

// Option configures a Store.
type Option func(*state)

// WithUnique declares columns of model whose non-NULL values must be unique.
func WithUnique(model string, fields ...string) Option {
	return func(s *state) {
		s.unique[model] = append(s.unique[model], fields...)
	}
}

// DefaultUniques declares the unique columns of the platform schema.
func DefaultUniques() []Option {
	return []Option{
		WithUnique("tenants", "subdomain", "custom_domain"),
		WithUnique("users", "email"),
		WithUnique("templates", "key"),
	}
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Store implements storage.Client over maps.
type Store struct {
	mu    sync.Locker
	state *state
}

var _ storage.Client = (*Store)(nil)

// New returns an empty Store.
func New(opts ...Option) *Store {
	st := &state{
		tables: map[string][]storage.Record{},
		unique: map[string][]string{},
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Store{mu: &sync.Mutex{}, state: st}
}

// Rows returns a copy of every row of model, bypassing any scoping. Tests
// use it to inspect what reached storage.
func (s *Store) Rows(model string) []storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.state.tables[model]
	out := make([]storage.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func (s *Store) checkUnique(model string, row storage.Record, skip int) error {
	for _, field := range s.state.unique[model] {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		for i, other := range s.state.tables[model] {
			if i == skip {
				continue
			}
			if storage.Match(storage.Eq{Field: field, Value: v}, other) {
				return &storage.UniqueViolationError{
					Model: model,
					Field: field,
					Cause: fmt.Errorf("duplicate value %v", v),
				}
			}
		}
	}
	return nil
}

func (s *Store) insert(model string, data storage.Record) (storage.Record, error) {
	row := data.Clone()
	if row == nil {
		row = storage.Record{}
	}
	if row.String(storage.IDColumn) == "" {
		row[storage.IDColumn] = storage.NewID()
	}
	if err := s.checkUnique(model, row, -1); err != nil {
		return nil, err
	}
	s.state.tables[model] = append(s.state.tables[model], row)
	return row.Clone(), nil
}

func (s *Store) matching(model string, where storage.Cond) []int {
	var out []int
	for i, r := range s.state.tables[model] {
		if storage.Match(where, r) {
			out = append(out, i)
		}
	}
	return out
}

func (s *Store) apply(model string, idx int, data storage.Record) (storage.Record, error) {
	row := s.state.tables[model][idx].Clone()
	for k, v := range data {
		row[k] = v
	}
	if err := s.checkUnique(model, row, idx); err != nil {
		return nil, err
	}
	s.state.tables[model][idx] = row
	return row.Clone(), nil
}

func (s *Store) remove(model string, idx []int) {
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	rows := s.state.tables[model]
	kept := rows[:0:0]
	for i, r := range rows {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	s.state.tables[model] = kept
}

func (s *Store) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(model, data)
}

// CreateMany inserts every row or none.
func (s *Store) CreateMany(ctx context.Context, model string, data []storage.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.state.tables[model])
	for _, row := range data {
		if _, err := s.insert(model, row); err != nil {
			s.state.tables[model] = s.state.tables[model][:before]
			return 0, err
		}
	}
	return int64(len(data)), nil
}

func (s *Store) FindMany(ctx context.Context, model string, q storage.Query) ([]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []storage.Record
	for _, i := range s.matching(model, q.Where) {
		rows = append(rows, s.state.tables[model][i].Clone())
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(rows, func(a, b int) bool {
			for _, o := range q.OrderBy {
				c := storage.Compare(rows[a][o.Field], rows[b][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			return []storage.Record{}, nil
		}
		rows = rows[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(rows) {
		rows = rows[:q.Limit]
	}
	if rows == nil {
		rows = []storage.Record{}
	}
	return rows, nil
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
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matching(model, where))), nil
}

func (s *Store) Aggregate(ctx context.Context, model string, a storage.Aggregation) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.matching(model, a.Where)
	if a.Op == storage.AggCount {
		return float64(len(idx)), nil
	}

	var (
		values []float64
		sum    float64
	)
	for _, i := range idx {
		f, ok := storage.ToFloat(s.state.tables[model][i][a.Field])
		if !ok {
			continue
		}
		values = append(values, f)
		sum += f
	}
	if len(values) == 0 {
		return 0, nil
	}

	switch a.Op {
	case storage.AggSum:
		return sum, nil
	case storage.AggAvg:
		return sum / float64(len(values)), nil
	case storage.AggMin, storage.AggMax:
		out := values[0]
		for _, v := range values[1:] {
			if (a.Op == storage.AggMin && v < out) || (a.Op == storage.AggMax && v > out) {
				out = v
			}
		}
		return out, nil
	}
	return 0, apperr.Validation("unsupported aggregate " + string(a.Op))
}

func (s *Store) GroupBy(ctx context.Context, model string, g storage.Grouping) ([]storage.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index := map[string]int{}
	var groups []storage.Group
	for _, i := range s.matching(model, g.Where) {
		row := s.state.tables[model][i]
		key := storage.Record{}
		parts := make([]string, 0, len(g.By))
		for _, field := range g.By {
			key[field] = row[field]
			parts = append(parts, fmt.Sprint(row[field]))
		}
		k := strings.Join(parts, "\x00")
		if n, ok := index[k]; ok {
			groups[n].Count++
			continue
		}
		index[k] = len(groups)
		groups = append(groups, storage.Group{Key: key, Count: 1})
	}

	sort.SliceStable(groups, func(a, b int) bool {
		for _, field := range g.By {
			if c := storage.Compare(groups[a].Key[field], groups[b].Key[field]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	if groups == nil {
		groups = []storage.Group{}
	}
	return groups, nil
}

func (s *Store) Update(ctx context.Context, model string, where storage.Cond, data storage.Record) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.matching(model, where)
	if len(idx) == 0 {
		return nil, storage.ErrNotFound(model)
	}
	return s.apply(model, idx[0], data)
}

func (s *Store) UpdateMany(ctx context.Context, model string, where storage.Cond, data storage.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state.snapshot()
	idx := s.matching(model, where)
	for _, i := range idx {
		if _, err := s.apply(model, i, data); err != nil {
			s.state.tables = snap
			return 0, err
		}
	}
	return int64(len(idx)), nil
}

func (s *Store) Upsert(ctx context.Context, model string, args storage.UpsertArgs) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.matching(model, args.Where); len(idx) > 0 {
		return s.apply(model, idx[0], args.Update)
	}
	return s.insert(model, args.Create)
}

func (s *Store) Delete(ctx context.Context, model string, where storage.Cond) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.matching(model, where)
	if len(idx) == 0 {
		return nil, storage.ErrNotFound(model)
	}
	row := s.state.tables[model][idx[0]].Clone()
	s.remove(model, idx[:1])
	return row, nil
}

func (s *Store) DeleteMany(ctx context.Context, model string, where storage.Cond) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.matching(model, where)
	s.remove(model, idx)
	return int64(len(idx)), nil
}

// Transaction serialises fn against every other caller of the store and
// restores the prior state when fn fails or panics.
func (s *Store) Transaction(ctx context.Context, fn func(tx storage.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.state.tables = snap
		}
	}()

	if err := fn(&Store{mu: noLock{}, state: s.state}); err != nil {
		return err
	}
	committed = true
	return nil
}
