package provisioning

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/apperr"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// SyncedUser is a user announced by the identity provider's webhook.
type SyncedUser struct {
	IdentityUserID string
	Email          string
	FirstName      string
	LastName       string
}

// SyncUser creates or refreshes the local row of an identity user, keyed by
// email. New rows have no tenant; signup attaches them later. The tenant and
// role of existing rows are left alone.
func SyncUser(ctx context.Context, client storage.Client, u SyncedUser) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" || u.IdentityUserID == "" {
		return apperr.Validation("user id and email are required")
	}
	platform, err := tenantctx.WithPlatformBypass(ctx, "identity webhook: user sync")
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = client.Upsert(platform, tenancy.ModelUsers, storage.UpsertArgs{
		Where: storage.Eq{Field: "email", Value: u.Email},
		Create: storage.Record{
			"email":            u.Email,
			"password":         model.ExternalAuthPassword,
			"role":             "",
			"identity_user_id": u.IdentityUserID,
			"first_name":       u.FirstName,
			"last_name":        u.LastName,
			"created_at":       now,
			"updated_at":       now,
		},
		Update: storage.Record{
			"identity_user_id": u.IdentityUserID,
			"first_name":       u.FirstName,
			"last_name":        u.LastName,
			"updated_at":       now,
		},
	})
	if err != nil {
		if _, ok := storage.AsUniqueViolation(err); ok {
			// Signup created the row between our read and write; it already
			// carries the identity user id.
			return nil
		}
		return err
	}
	logger.FromContext(ctx).Info("Identity user synced",
		zap.String("identity_user_id", u.IdentityUserID))
	return nil
}

// RemoveUser unlinks the local row of a deleted identity user. Rows attached
// to a tenant are kept so the tenant's data stays attributable.
func RemoveUser(ctx context.Context, client storage.Client, identityUserID string) error {
	platform, err := tenantctx.WithPlatformBypass(ctx, "identity webhook: user removal")
	if err != nil {
		return err
	}
	n, err := client.DeleteMany(platform, tenancy.ModelUsers, storage.And{
		storage.Eq{Field: "identity_user_id", Value: identityUserID},
		storage.IsNull{Field: tenancy.TenantColumn},
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Identity user removed",
		zap.String("identity_user_id", identityUserID),
		zap.Int64("rows", n))
	return nil
}
