package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// WebhookSecretHeader carries the shared secret of identity webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecretMiddleware accepts only requests carrying secret in
// WebhookSecretHeader. An empty secret rejects everything.
func WebhookSecretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(WebhookSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.FromEcho(c).Warn("Webhook rejected: bad secret")
				metrics.RecordHandlerError("webhook_unauthorized")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid webhook secret"})
			}
			return next(c)
		}
	}
}
