// Package middleware holds the echo middleware shared by every route.
package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/lily/server/internal/observability"
)

// RequestLogger logs one structured line per request.
// Client errors log at warn level, server errors at error level.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String(observability.LogFieldRequestID, v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64(observability.LogFieldDuration, v.Latency.Milliseconds()),
			}
			if reqCtx, ok := observability.FromContext(c.Request().Context()); ok && reqCtx.SessionID != "" {
				attrs = append(attrs, slog.String(observability.LogFieldSessionID, reqCtx.SessionID))
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(context.Background(), level, "http request", attrs...)
			return nil
		},
	})
}

// RequestContext attaches an observability.RequestContext carrying the
// X-Request-ID assigned by middleware.RequestID, so that service logs and the
// access log share the id.
func RequestContext(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			req := c.Request()
			reqCtx := observability.NewRequestContextWithID(logger, id, "")
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			return next(c)
		}
	}
}
