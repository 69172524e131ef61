package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. The vault serves credential data, so browser-side
// protections matter even though the API only returns JSON.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// The API never serves markup, so lock the CSP down completely.
			h.Set("Content-Security-Policy",
				"default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

			// TLS terminates at the reverse proxy; tell browsers to keep
			// using HTTPS for subsequent requests.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// Prevent MIME type sniffing of responses.
			h.Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking (redundant with CSP frame-ancestors but
			// some older browsers only support this header).
			h.Set("X-Frame-Options", "DENY")

			// Never leak vault URLs to external sites.
			h.Set("Referrer-Policy", "no-referrer")

			// Decrypted credentials pass through list responses. Make sure
			// no intermediary or browser cache ever stores them.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
