package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vetrova/vaultkeep/internal/middleware"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Auth routes are public (no session required) -- RequireAuth is exported
// separately for other plugins to use on their route groups.
//
// POST endpoints are rate-limited to slow brute-force and credential
// stuffing: 10 attempts per IP per minute for login, 5 for register, and
// 3 per 5 minutes for the email-sending endpoints.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))
	e.POST("/login", h.Login, middleware.RateLimit(10, time.Minute))
	e.POST("/logout", h.Logout)

	e.POST("/confirm/:user_id/send", h.SendConfirmCode, middleware.RateLimit(3, 5*time.Minute))
	e.POST("/confirm/:user_id", h.ConfirmAccount, middleware.RateLimit(10, time.Minute))

	e.POST("/forgot-password", h.ForgotPassword, middleware.RateLimit(3, 5*time.Minute))
	e.POST("/reset-password", h.ResetPassword, middleware.RateLimit(10, time.Minute))
}
