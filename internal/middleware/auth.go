package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/audit"
	"github.com/suteetoe/shopfleet/internal/model"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/jwtutil"
	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

const claimsKey = "user"

// JWTAuthMiddleware creates a middleware that validates JWT tokens
func JWTAuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			// Extract the token from the Authorization header
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				log.Warn("Missing authorization header")
				metrics.RecordHandlerError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing authorization header"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format")
				metrics.RecordHandlerError("invalid_token_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid authorization header format"})
			}

			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				metrics.RecordHandlerError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid or expired token"})
			}

			c.Set(claimsKey, claims)
			log.Debug("JWT token validated successfully",
				zap.String("user_id", claims.UserID),
				zap.String("role", claims.Role))

			return next(c)
		}
	}
}

// ClaimsFromContext returns the claims JWTAuthMiddleware stored.
func ClaimsFromContext(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok
}

// TenantAdminMiddleware binds the tenant of a TENANT_ADMIN token to the
// request context. It must run after JWTAuthMiddleware.
func TenantAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFromContext(c)
			if !ok || claims.Role != model.RoleTenantAdmin || claims.TenantID == "" {
				logger.FromEcho(c).Warn("Tenant admin route denied")
				metrics.RecordHandlerError("forbidden")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant admin access required"})
			}

			ctx, err := tenantctx.Bind(audit.WithActor(c.Request().Context(), claims.UserID), claims.TenantID)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant admin access required"})
			}
			bindLogger(c, ctx, claims.TenantID)
			return next(c)
		}
	}
}

// PlatformAdminMiddleware marks requests of PLATFORM_ADMIN tokens with a
// platform bypass naming the admin and the route. It must run after
// JWTAuthMiddleware.
func PlatformAdminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFromContext(c)
			if !ok || claims.Role != model.RolePlatformAdmin {
				logger.FromEcho(c).Warn("Platform admin route denied")
				metrics.RecordHandlerError("forbidden")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "platform admin access required"})
			}

			reason := "platform admin " + claims.UserID + ": " + c.Request().Method + " " + c.Path()
			ctx, err := tenantctx.WithPlatformBypass(audit.WithActor(c.Request().Context(), claims.UserID), reason)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "platform admin access required"})
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
