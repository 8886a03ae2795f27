package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security response
// headers on every request. The API fronts patient data, so responses
// are marked uncacheable by default; the SSE stream endpoint replaces
// Cache-Control with its own value when it starts writing.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Prevent MIME type sniffing
			h.Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			h.Set("X-Frame-Options", "DENY")

			// Strict CSP for a JSON API: deny all resource loading and
			// frame embedding.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// HSTS for 1 year including subdomains.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// Never leak URLs to downstream services.
			h.Set("Referrer-Policy", "no-referrer")

			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Responses carry patient-derived data and must not be cached.
			// Event streams set no-cache instead so proxies pass them through.
			if !strings.HasSuffix(c.Request().URL.Path, "/events") {
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}
