package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/provisioning"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// identityEvent is the webhook envelope of the identity provider.
type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// IdentityWebhook keeps local user rows in step with identity-provider users
func (h *Handler) IdentityWebhook(c echo.Context) error {
	log := logger.FromEcho(c)

	var event identityEvent
	if err := c.Bind(&event); err != nil {
		return badRequest(c, err)
	}
	ctx := c.Request().Context()

	switch event.Type {
	case "user.created", "user.updated":
		email := ""
		if len(event.Data.EmailAddresses) > 0 {
			email = event.Data.EmailAddresses[0].EmailAddress
		}
		err := provisioning.SyncUser(ctx, h.Client, provisioning.SyncedUser{
			IdentityUserID: event.Data.ID,
			Email:          email,
			FirstName:      event.Data.FirstName,
			LastName:       event.Data.LastName,
		})
		if err != nil {
			return respondError(c, err, "webhook_sync_failed")
		}
	case "user.deleted":
		if err := provisioning.RemoveUser(ctx, h.Client, event.Data.ID); err != nil {
			return respondError(c, err, "webhook_sync_failed")
		}
	default:
		log.Debug("Ignoring identity event", zap.String("type", event.Type))
	}
	return c.NoContent(http.StatusNoContent)
}
