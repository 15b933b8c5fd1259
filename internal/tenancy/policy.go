// Package tenancy scopes every storage call on tenant-owned collections to
// the tenant bound in the request context.
package tenancy

import (
	"fmt"
	"sort"
	"strings"
)

// TenantColumn is the foreign key every tenant-scoped row carries.
const TenantColumn = "tenant_id"

// Mode is the scoping policy of one collection.
type Mode int

const (
	// Strict rows always belong to exactly one tenant.
	Strict Mode = iota + 1
	// AllowNull rows may have a NULL tenant, meaning a default shared by
	// every tenant.
	AllowNull
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "STRICT"
	case AllowNull:
		return "ALLOW_NULL"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Policy maps collection names to their scoping mode. Collections absent
// from the table are not tenant scoped.
type Policy map[string]Mode

// Collection names of the tenant-scoped models.
const (
	ModelProducts       = "products"
	ModelOrders         = "orders"
	ModelUsers          = "users"
	ModelPosts          = "posts"
	ModelWebhooks       = "webhooks"
	ModelAuditEntries   = "audit_entries"
	ModelBrandings      = "brandings"
	ModelEmailTemplates = "email_templates"
)

// DefaultPolicy is the platform's scoping table.
func DefaultPolicy() Policy {
	return Policy{
		ModelProducts:       Strict,
		ModelOrders:         Strict,
		ModelUsers:          Strict,
		ModelPosts:          Strict,
		ModelWebhooks:       Strict,
		ModelAuditEntries:   Strict,
		ModelBrandings:      Strict,
		ModelEmailTemplates: AllowNull,
	}
}

// ModeOf returns the mode of model and whether model is tenant scoped.
func (p Policy) ModeOf(model string) (Mode, bool) {
	m, ok := p[model]
	return m, ok
}

// String renders the table in a stable order for startup logs.
func (p Policy) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+p[name].String())
	}
	return strings.Join(parts, ",")
}
