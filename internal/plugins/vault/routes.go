package vault

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vetrova/vaultkeep/internal/middleware"
	"github.com/vetrova/vaultkeep/internal/plugins/auth"
)

// RegisterRoutes sets up all vault routes under /vault. Every route
// requires an authenticated session. Import is rate-limited: a CSV merge
// re-encrypts the whole vault, so it is the most expensive request we serve.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService) {
	g := e.Group("/vault", auth.RequireAuth(authService))

	g.GET("/records", h.List)
	g.POST("/records", h.Create)
	g.PUT("/records/:id", h.Update)
	g.POST("/records/delete", h.Delete)

	g.POST("/search", h.Search)
	g.GET("/export", h.Export)
	g.POST("/import", h.Import, middleware.RateLimit(5, time.Minute))

	g.GET("/profile", h.Profile)
}
