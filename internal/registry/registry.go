// Package registry owns the Tenant entity and its lifecycle. Tenants are
// not a scoped collection, so every method states explicitly whose row it
// may touch: platform operations require a bypass, tenant-admin operations
// act on the bound tenant only.
package registry

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// Collection is the table tenants are stored in.
const Collection = "tenants"

// SettingIdentityOrgID links a tenant to its identity-provider organization.
const SettingIdentityOrgID = "identityOrgId"

// Conflict messages surfaced to callers.
const (
	MsgSubdomainTaken    = "Subdomain already taken"
	MsgCustomDomainTaken = "Custom domain already taken"
)

// Registry reads and writes tenants through a storage client.
type Registry struct {
	client     storage.Client
	cache      Cache
	baseDomain string
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache enables host resolution caching.
func WithCache(cache Cache) Option {
	return func(r *Registry) { r.cache = cache }
}

// WithBaseDomain sets the platform domain tenants are served under as
// subdomains.
func WithBaseDomain(domain string) Option {
	return func(r *Registry) { r.baseDomain = strings.ToLower(strings.Trim(domain, ".")) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a Registry over client.
func New(client storage.Client, opts ...Option) *Registry {
	r := &Registry{client: client, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithClient returns a copy of r that uses client, typically a transaction.
func (r *Registry) WithClient(client storage.Client) *Registry {
	cp := *r
	cp.client = client
	return &cp
}

// ListFilter narrows a platform tenant listing.
type ListFilter struct {
	Active *bool
	Search string
	Limit  int
	Offset int
}

// Patch is a tenant-admin update. Nil fields are left unchanged.
type Patch struct {
	BusinessName *string
	CountryCode  *string
	Settings     map[string]any
}

func toRecord(t *model.Tenant) storage.Record {
	var customDomain any
	if t.CustomDomain != nil {
		customDomain = *t.CustomDomain
	}
	settings := t.Settings
	if settings == nil {
		settings = model.JSONMap{}
	}
	return storage.Record{
		storage.IDColumn: t.ID,
		"business_name":  t.BusinessName,
		"subdomain":      t.Subdomain,
		"custom_domain":  customDomain,
		"country_code":   t.CountryCode,
		"is_active":      t.IsActive,
		"settings":       settings,
		"created_at":     t.CreatedAt,
		"updated_at":     t.UpdatedAt,
	}
}

func fromRecord(r storage.Record) (*model.Tenant, error) {
	settings, err := model.ParseJSONMap(r["settings"])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "tenant settings are corrupt", err)
	}
	t := &model.Tenant{
		ID:           r.String(storage.IDColumn),
		BusinessName: r.String("business_name"),
		Subdomain:    r.String("subdomain"),
		CountryCode:  r.String("country_code"),
		IsActive:     r.Bool("is_active"),
		Settings:     settings,
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
	if d := r.String("custom_domain"); d != "" {
		t.CustomDomain = &d
	}
	return t, nil
}

func mapConflict(err error) error {
	uv, ok := storage.AsUniqueViolation(err)
	if !ok {
		return err
	}
	if uv.Field == "custom_domain" {
		return apperr.Wrap(apperr.KindConflict, MsgCustomDomainTaken, err)
	}
	return apperr.Wrap(apperr.KindConflict, MsgSubdomainTaken, err)
}

func requireBypass(ctx context.Context, op string) error {
	if _, ok := tenantctx.BypassReason(ctx); ok {
		return nil
	}
	logger.FromContext(ctx).Error("Platform tenant operation without bypass", zap.String("operation", op))
	metrics.RecordIsolationViolation(Collection, op)
	return apperr.IsolationViolation("tenants " + op + ": platform bypass required")
}

func requireTenant(ctx context.Context, op string) (string, error) {
	id, ok := tenantctx.Current(ctx)
	if ok {
		return id, nil
	}
	logger.FromContext(ctx).Error("Tenant admin operation without bound tenant", zap.String("operation", op))
	metrics.RecordIsolationViolation(Collection, op)
	return "", apperr.IsolationViolation("tenants " + op + ": no tenant bound")
}

// Create validates and inserts a tenant. A fresh id is assigned when t has
// none. Uniqueness is enforced by the storage engine, so concurrent creates
// of one subdomain yield exactly one success and one Conflict.
func (r *Registry) Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error) {
	t.BusinessName = strings.TrimSpace(t.BusinessName)
	if err := Validate(t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = storage.NewID()
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.IsActive = true

	row, err := r.client.Create(ctx, Collection, toRecord(t))
	if err != nil {
		return nil, mapConflict(err)
	}
	logger.FromContext(ctx).Info("Tenant created",
		zap.String("tenant_id", t.ID),
		zap.String("subdomain", t.Subdomain))
	return fromRecord(row)
}

// GetByID returns a tenant by id.
func (r *Registry) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	row, err := r.client.FindUnique(ctx, Collection, storage.Eq{Field: storage.IDColumn, Value: id})
	if err != nil {
		return nil, err
	}
	return fromRecord(row)
}

// GetBySubdomain returns a tenant by subdomain.
func (r *Registry) GetBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error) {
	row, err := r.client.FindUnique(ctx, Collection, storage.Eq{Field: "subdomain", Value: strings.ToLower(subdomain)})
	if err != nil {
		return nil, err
	}
	return fromRecord(row)
}

// SubdomainTaken reports whether any tenant uses subdomain.
func (r *Registry) SubdomainTaken(ctx context.Context, subdomain string) (bool, error) {
	n, err := r.client.Count(ctx, Collection, storage.Eq{Field: "subdomain", Value: subdomain})
	return n > 0, err
}

// ResolveHost maps a request host to an active tenant: a subdomain of the
// platform base domain, or a custom domain.
func (r *Registry) ResolveHost(ctx context.Context, host string) (*model.Tenant, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, apperr.NotFound("tenant not found")
	}
	log := logger.FromContext(ctx)

	if r.cache != nil {
		id, ok, err := r.cache.Get(ctx, host)
		switch {
		case err != nil:
			metrics.RecordResolutionCache("error")
			log.Warn("Tenant cache lookup failed", zap.String("host", host), zap.Error(err))
		case ok:
			metrics.RecordResolutionCache("hit")
			t, err := r.GetByID(ctx, id)
			if err == nil && t.IsActive {
				return t, nil
			}
			_ = r.cache.Delete(ctx, host)
		default:
			metrics.RecordResolutionCache("miss")
		}
	}

	var where storage.Cond
	if sub, ok := r.subdomainOf(host); ok {
		where = storage.Eq{Field: "subdomain", Value: sub}
	} else {
		where = storage.Eq{Field: "custom_domain", Value: host}
	}
	row, err := r.client.FindFirst(ctx, Collection, storage.Query{Where: where})
	if err != nil {
		return nil, err
	}
	t, err := fromRecord(row)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, apperr.NotFound("tenant not found")
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, host, t.ID); err != nil {
			log.Warn("Tenant cache write failed", zap.String("host", host), zap.Error(err))
		}
	}
	return t, nil
}

func (r *Registry) subdomainOf(host string) (string, bool) {
	if r.baseDomain == "" {
		return "", false
	}
	sub, found := strings.CutSuffix(host, "."+r.baseDomain)
	if !found || sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

func (r *Registry) hostsOf(t *model.Tenant) []string {
	var hosts []string
	if r.baseDomain != "" {
		hosts = append(hosts, t.Subdomain+"."+r.baseDomain)
	}
	if t.CustomDomain != nil {
		hosts = append(hosts, *t.CustomDomain)
	}
	return hosts
}

func (r *Registry) invalidate(ctx context.Context, hosts ...string) {
	if r.cache == nil || len(hosts) == 0 {
		return
	}
	if err := r.cache.Delete(ctx, hosts...); err != nil {
		logger.FromContext(ctx).Warn("Tenant cache invalidation failed", zap.Strings("hosts", hosts), zap.Error(err))
	}
}

// List returns tenants across the platform. It requires a platform bypass.
func (r *Registry) List(ctx context.Context, f ListFilter) ([]*model.Tenant, error) {
	if err := requireBypass(ctx, "list"); err != nil {
		return nil, err
	}

	var conds []storage.Cond
	if f.Active != nil {
		conds = append(conds, storage.Eq{Field: "is_active", Value: *f.Active})
	}
	if f.Search != "" {
		conds = append(conds, storage.Or{
			storage.Contains{Field: "business_name", Substr: f.Search},
			storage.Contains{Field: "subdomain", Substr: f.Search},
		})
	}
	rows, err := r.client.FindMany(ctx, Collection, storage.Query{
		Where:   storage.All(conds...),
		OrderBy: []storage.Order{{Field: "created_at", Desc: true}},
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Tenant, 0, len(rows))
	for _, row := range rows {
		t, err := fromRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Activate marks a tenant active. It requires a platform bypass.
func (r *Registry) Activate(ctx context.Context, id string) (*model.Tenant, error) {
	return r.setActive(ctx, id, true)
}

// Deactivate marks a tenant inactive. Tenants are never hard deleted; an
// inactive tenant no longer resolves from its hosts.
func (r *Registry) Deactivate(ctx context.Context, id string) (*model.Tenant, error) {
	return r.setActive(ctx, id, false)
}

func (r *Registry) setActive(ctx context.Context, id string, active bool) (*model.Tenant, error) {
	op := "deactivate"
	if active {
		op = "activate"
	}
	if err := requireBypass(ctx, op); err != nil {
		return nil, err
	}

	row, err := r.client.Update(ctx, Collection,
		storage.Eq{Field: storage.IDColumn, Value: id},
		storage.Record{"is_active": active, "updated_at": r.now().UTC()})
	if err != nil {
		return nil, err
	}
	t, err := fromRecord(row)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, r.hostsOf(t)...)

	logger.FromContext(ctx).Info("Tenant status changed",
		zap.String("tenant_id", id),
		zap.Bool("active", active))
	return t, nil
}

// Current returns the tenant bound to ctx.
func (r *Registry) Current(ctx context.Context) (*model.Tenant, error) {
	id, err := requireTenant(ctx, "get")
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateSettings applies a tenant-admin patch to the bound tenant. The
// subdomain is immutable and the identity link cannot be edited.
func (r *Registry) UpdateSettings(ctx context.Context, p Patch) (*model.Tenant, error) {
	id, err := requireTenant(ctx, "update")
	if err != nil {
		return nil, err
	}

	data := storage.Record{}
	if p.BusinessName != nil {
		name := strings.TrimSpace(*p.BusinessName)
		if err := ValidateBusinessName(name); err != nil {
			return nil, err
		}
		data["business_name"] = name
	}
	if p.CountryCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*p.CountryCode))
		if err := ValidateCountryCode(code); err != nil {
			return nil, err
		}
		data["country_code"] = code
	}
	if p.Settings != nil {
		if _, ok := p.Settings[SettingIdentityOrgID]; ok {
			return nil, apperr.Validation(SettingIdentityOrgID + " cannot be changed")
		}
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		merged := current.Settings.Clone()
		for k, v := range p.Settings {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		data["settings"] = merged
	}
	if len(data) == 0 {
		return r.GetByID(ctx, id)
	}
	data["updated_at"] = r.now().UTC()

	row, err := r.client.Update(ctx, Collection, storage.Eq{Field: storage.IDColumn, Value: id}, data)
	if err != nil {
		return nil, err
	}
	return fromRecord(row)
}

// SetCustomDomain sets or, with an empty domain, clears the custom domain
// of the bound tenant.
func (r *Registry) SetCustomDomain(ctx context.Context, domain string) (*model.Tenant, error) {
	id, err := requireTenant(ctx, "set_domain")
	if err != nil {
		return nil, err
	}

	var value any
	if domain != "" {
		domain = NormalizeHost(domain)
		if err := ValidateCustomDomain(domain); err != nil {
			return nil, err
		}
		if r.baseDomain != "" && (domain == r.baseDomain || strings.HasSuffix(domain, "."+r.baseDomain)) {
			return nil, apperr.Validation("custom domain may not be under the platform domain")
		}
		value = domain
	}

	before, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	row, err := r.client.Update(ctx, Collection,
		storage.Eq{Field: storage.IDColumn, Value: id},
		storage.Record{"custom_domain": value, "updated_at": r.now().UTC()})
	if err != nil {
		return nil, mapConflict(err)
	}
	if before.CustomDomain != nil {
		r.invalidate(ctx, *before.CustomDomain)
	}
	if domain != "" {
		r.invalidate(ctx, domain)
	}
	return fromRecord(row)
}
