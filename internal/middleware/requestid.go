package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/pkg/logger"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
				c.Request().Header.Set(echo.HeaderXRequestID, requestID)
			}

			// Add request ID to response header
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			// Request-scoped logger for handlers and for code below them that
			// only sees the context.Context
			logger.Attach(c, logger.GetLogger().With(zap.String("request_id", requestID)))

			return next(c)
		}
	}
}
