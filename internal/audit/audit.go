// Package audit persists the tenant-scoped write attempts seen by the
// tenancy interceptor into the audit_entries collection. Entries are taken
// before the write runs, so a rejected or rolled back write still leaves one.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the acting user of ctx, or "system".
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

var writes = map[tenancy.Action]bool{
	tenancy.ActionCreate:     true,
	tenancy.ActionCreateMany: true,
	tenancy.ActionUpdate:     true,
	tenancy.ActionUpdateMany: true,
	tenancy.ActionUpsert:     true,
	tenancy.ActionDelete:     true,
	tenancy.ActionDeleteMany: true,
}

type entry struct {
	tenantID string
	actor    string
	action   string
	at       time.Time
}

// Recorder writes audit entries in the background. Entries are dropped,
// with a warning, when the buffer is full.
type Recorder struct {
	store storage.Client
	log   *zap.Logger
	queue chan entry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a Recorder writing to store, which must be the
// unscoped engine: entries carry their tenant explicitly.
func NewRecorder(store storage.Client, buffer int) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &Recorder{
		store: store,
		log:   logger.GetLogger().With(zap.String("component", "audit")),
		queue: make(chan entry, buffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Hook returns the interceptor hook feeding r.
func (r *Recorder) Hook() tenancy.AuditHook {
	return func(ctx context.Context, a tenancy.Attribution) {
		if !writes[a.Action] || a.Model == tenancy.ModelAuditEntries || a.TenantID == "" {
			return
		}
		e := entry{
			tenantID: a.TenantID,
			actor:    Actor(ctx),
			action:   a.Model + "." + string(a.Action),
			at:       time.Now().UTC(),
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed {
			return
		}
		select {
		case r.queue <- e:
		default:
			r.log.Warn("Audit buffer full, dropping entry",
				zap.String("tenant_id", e.tenantID),
				zap.String("action", e.action))
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		_, err := r.store.Create(context.Background(), tenancy.ModelAuditEntries, storage.Record{
			tenancy.TenantColumn: e.tenantID,
			"actor":              e.actor,
			"action":             e.action,
			"detail":             "",
			"created_at":         e.at,
		})
		if err != nil {
			r.log.Error("Failed to write audit entry",
				zap.String("tenant_id", e.tenantID),
				zap.String("action", e.action),
				zap.Error(err))
		}
	}
}

// Close flushes pending entries and stops the writer. Writes seen after
// Close are not recorded.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
