package tenancy

import (
	"context"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// Action names a storage operation for audit and metrics.
type Action string

const (
	ActionCreate     Action = "create"
	ActionCreateMany Action = "createMany"
	ActionFindMany   Action = "findMany"
	ActionFindUnique Action = "findUnique"
	ActionFindFirst  Action = "findFirst"
	ActionCount      Action = "count"
	ActionAggregate  Action = "aggregate"
	ActionGroupBy    Action = "groupBy"
	ActionUpdate     Action = "update"
	ActionUpdateMany Action = "updateMany"
	ActionUpsert     Action = "upsert"
	ActionDelete     Action = "delete"
	ActionDeleteMany Action = "deleteMany"
)

// Attribution describes one scoped or bypassed storage call.
type Attribution struct {
	Model    string
	Action   Action
	TenantID string // tenant applied; empty when only shared rows were in scope
	Bypass   string // bypass reason; empty for scoped calls
}

// AuditHook receives every attributed call.
type AuditHook func(ctx context.Context, a Attribution)

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithAuditHook registers a hook called for every scoped or bypassed call.
func WithAuditHook(hook AuditHook) Option {
	return func(i *Interceptor) { i.hooks = append(i.hooks, hook) }
}

// Interceptor decorates a storage.Client and rewrites the arguments of every
// call on a tenant-scoped collection before delegating.
type Interceptor struct {
	next   storage.Client
	policy Policy
	hooks  []AuditHook
}

var _ storage.Client = (*Interceptor)(nil)

// New wraps next with tenant scoping according to policy.
func New(next storage.Client, policy Policy, opts ...Option) *Interceptor {
	i := &Interceptor{next: next, policy: policy}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Policy returns the scoping table in effect.
func (i *Interceptor) Policy() Policy { return i.policy }

// scope is the resolved scoping decision of one call.
type scope struct {
	scoped   bool // false: pass the call through unchanged
	mode     Mode
	tenantID string // empty for an unbound AllowNull call
}

func (s scope) bound() bool { return s.tenantID != "" }

// resolve decides how a call on model is scoped. It fails with an
// IsolationViolation for strict models without a bound tenant.
func (i *Interceptor) resolve(ctx context.Context, model string, action Action) (scope, error) {
	mode, ok := i.policy.ModeOf(model)
	if !ok {
		return scope{}, nil
	}

	if reason, ok := tenantctx.BypassReason(ctx); ok {
		logger.FromContext(ctx).Info("Tenant scoping bypassed",
			zap.String("model", model),
			zap.String("action", string(action)),
			zap.String("reason", reason))
		metrics.RecordBypass(model, string(action))
		i.attribute(ctx, Attribution{Model: model, Action: action, Bypass: reason})
		return scope{}, nil
	}

	tenantID, bound := tenantctx.Current(ctx)
	if !bound && mode == Strict {
		return scope{}, i.violation(ctx, model, action, "no tenant bound")
	}

	s := scope{scoped: true, mode: mode, tenantID: tenantID}
	logger.FromContext(ctx).Debug("Scoped storage call",
		zap.String("model", model),
		zap.String("action", string(action)),
		zap.String("tenant_id", tenantID))
	metrics.RecordScopedOperation(model, string(action))
	i.attribute(ctx, Attribution{Model: model, Action: action, TenantID: tenantID})
	return s, nil
}

func (i *Interceptor) attribute(ctx context.Context, a Attribution) {
	for _, hook := range i.hooks {
		hook(ctx, a)
	}
}

// violation logs loudly and returns the IsolationViolation error. It is
// never downgraded to NotFound.
func (i *Interceptor) violation(ctx context.Context, model string, action Action, detail string) error {
	logger.FromContext(ctx).Error("Tenant isolation violation",
		zap.String("model", model),
		zap.String("action", string(action)),
		zap.String("detail", detail),
		zap.Stack("stack"))
	metrics.RecordIsolationViolation(model, string(action))
	return apperr.IsolationViolation(model + " " + string(action) + ": " + detail)
}

// readFilter is merged into read-many style calls.
func (s scope) readFilter() storage.Cond {
	if !s.bound() {
		return storage.IsNull{Field: TenantColumn}
	}
	own := storage.Eq{Field: TenantColumn, Value: s.tenantID}
	if s.mode == AllowNull {
		return storage.Or{own, storage.IsNull{Field: TenantColumn}}
	}
	return own
}

// keyFilter is merged into by-key writes: only the bound tenant's own rows
// can be changed. Unbound AllowNull calls may only touch shared rows.
func (s scope) keyFilter() storage.Cond {
	if !s.bound() {
		return storage.IsNull{Field: TenantColumn}
	}
	return storage.Eq{Field: TenantColumn, Value: s.tenantID}
}

// stamp sets the tenant column of a row about to be created.
func (i *Interceptor) stamp(ctx context.Context, model string, action Action, s scope, data storage.Record) (storage.Record, error) {
	out := data.Clone()
	if out == nil {
		out = storage.Record{}
	}
	supplied := out.String(TenantColumn)
	switch {
	case supplied == "":
		if s.bound() {
			out[TenantColumn] = s.tenantID
		} else {
			out[TenantColumn] = nil
		}
	case supplied != s.tenantID:
		return nil, i.violation(ctx, model, action, "tenant_id does not match the bound tenant")
	}
	return out, nil
}

// checkUpdate rejects updates that would move a row to another tenant.
func (i *Interceptor) checkUpdate(ctx context.Context, model string, action Action, s scope, data storage.Record) error {
	if _, ok := data[TenantColumn]; !ok {
		return nil
	}
	if data.String(TenantColumn) != s.tenantID {
		return i.violation(ctx, model, action, "update may not change tenant_id")
	}
	return nil
}

func (i *Interceptor) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionCreate)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		if data, err = i.stamp(ctx, model, ActionCreate, s, data); err != nil {
			return nil, err
		}
	}
	return i.next.Create(ctx, model, data)
}

func (i *Interceptor) CreateMany(ctx context.Context, model string, data []storage.Record) (int64, error) {
	s, err := i.resolve(ctx, model, ActionCreateMany)
	if err != nil {
		return 0, err
	}
	if s.scoped {
		stamped := make([]storage.Record, 0, len(data))
		for _, row := range data {
			row, err := i.stamp(ctx, model, ActionCreateMany, s, row)
			if err != nil {
				return 0, err
			}
			stamped = append(stamped, row)
		}
		data = stamped
	}
	return i.next.CreateMany(ctx, model, data)
}

func (i *Interceptor) FindMany(ctx context.Context, model string, q storage.Query) ([]storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionFindMany)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		q.Where = storage.All(q.Where, s.readFilter())
	}
	return i.next.FindMany(ctx, model, q)
}

// FindUnique is downgraded to the first match within scope: a globally
// unique key may belong to another tenant and must not be returned then.
func (i *Interceptor) FindUnique(ctx context.Context, model string, where storage.Cond) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionFindUnique)
	if err != nil {
		return nil, err
	}
	if !s.scoped {
		return i.next.FindUnique(ctx, model, where)
	}
	return i.next.FindFirst(ctx, model, storage.Query{Where: storage.All(where, s.readFilter())})
}

func (i *Interceptor) FindFirst(ctx context.Context, model string, q storage.Query) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionFindFirst)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		q.Where = storage.All(q.Where, s.readFilter())
	}
	return i.next.FindFirst(ctx, model, q)
}

func (i *Interceptor) Count(ctx context.Context, model string, where storage.Cond) (int64, error) {
	s, err := i.resolve(ctx, model, ActionCount)
	if err != nil {
		return 0, err
	}
	if s.scoped {
		where = storage.All(where, s.readFilter())
	}
	return i.next.Count(ctx, model, where)
}

func (i *Interceptor) Aggregate(ctx context.Context, model string, a storage.Aggregation) (float64, error) {
	s, err := i.resolve(ctx, model, ActionAggregate)
	if err != nil {
		return 0, err
	}
	if s.scoped {
		a.Where = storage.All(a.Where, s.readFilter())
	}
	return i.next.Aggregate(ctx, model, a)
}

func (i *Interceptor) GroupBy(ctx context.Context, model string, g storage.Grouping) ([]storage.Group, error) {
	s, err := i.resolve(ctx, model, ActionGroupBy)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		g.Where = storage.All(g.Where, s.readFilter())
	}
	return i.next.GroupBy(ctx, model, g)
}

// Update is rewritten to "key AND tenant": a key owned by another tenant
// yields NotFound instead of touching that tenant's row.
func (i *Interceptor) Update(ctx context.Context, model string, where storage.Cond, data storage.Record) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionUpdate)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		if err := i.checkUpdate(ctx, model, ActionUpdate, s, data); err != nil {
			return nil, err
		}
		where = storage.All(where, s.keyFilter())
	}
	return i.next.Update(ctx, model, where, data)
}

func (i *Interceptor) UpdateMany(ctx context.Context, model string, where storage.Cond, data storage.Record) (int64, error) {
	s, err := i.resolve(ctx, model, ActionUpdateMany)
	if err != nil {
		return 0, err
	}
	if s.scoped {
		if err := i.checkUpdate(ctx, model, ActionUpdateMany, s, data); err != nil {
			return 0, err
		}
		where = storage.All(where, s.readFilter())
	}
	return i.next.UpdateMany(ctx, model, where, data)
}

func (i *Interceptor) Upsert(ctx context.Context, model string, args storage.UpsertArgs) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionUpsert)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		if err := i.checkUpdate(ctx, model, ActionUpsert, s, args.Update); err != nil {
			return nil, err
		}
		if args.Create, err = i.stamp(ctx, model, ActionUpsert, s, args.Create); err != nil {
			return nil, err
		}
		args.Where = storage.All(args.Where, s.keyFilter())
	}
	return i.next.Upsert(ctx, model, args)
}

// Delete is rewritten to "key AND tenant", like Update.
func (i *Interceptor) Delete(ctx context.Context, model string, where storage.Cond) (storage.Record, error) {
	s, err := i.resolve(ctx, model, ActionDelete)
	if err != nil {
		return nil, err
	}
	if s.scoped {
		where = storage.All(where, s.keyFilter())
	}
	return i.next.Delete(ctx, model, where)
}

func (i *Interceptor) DeleteMany(ctx context.Context, model string, where storage.Cond) (int64, error) {
	s, err := i.resolve(ctx, model, ActionDeleteMany)
	if err != nil {
		return 0, err
	}
	if s.scoped {
		where = storage.All(where, s.readFilter())
	}
	return i.next.DeleteMany(ctx, model, where)
}

// Transaction scopes the transactional client with the same policy.
func (i *Interceptor) Transaction(ctx context.Context, fn func(tx storage.Client) error) error {
	return i.next.Transaction(ctx, func(tx storage.Client) error {
		return fn(&Interceptor{next: tx, policy: i.policy, hooks: i.hooks})
	})
}
