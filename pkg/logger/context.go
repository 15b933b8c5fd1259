package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type contextKey string

const loggerKey contextKey = "logger"

// EchoKey is the echo.Context key holding the request logger. Middleware
// that enriches the logger must update both this key and the request
// context, which Attach does.
const EchoKey = "logger"

// FromContext retrieves the logger from the context, falling back to the
// global logger for nil or unannotated contexts.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return GetLogger()
	}
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// With derives a child logger carrying fields and returns it with a context
// holding it.
func With(ctx context.Context, fields ...zap.Field) (context.Context, *zap.Logger) {
	l := FromContext(ctx).With(fields...)
	return WithContext(ctx, l), l
}

// FromEcho retrieves the logger from the Echo context
func FromEcho(c echo.Context) *zap.Logger {
	if l, ok := c.Get(EchoKey).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}

// Attach makes l the request logger for both handlers reading the echo
// context and services reading the request context.
func Attach(c echo.Context, l *zap.Logger) {
	c.Set(EchoKey, l)
	c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), l)))
}
