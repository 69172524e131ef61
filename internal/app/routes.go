package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vetrova/vaultkeep/internal/plugins/auth"
	"github.com/vetrova/vaultkeep/internal/plugins/mailer"
	"github.com/vetrova/vaultkeep/internal/plugins/vault"
)

// RegisterRoutes builds every plugin's dependency chain and registers its
// routes. This is the single place where the plugins are wired together:
// the vault plugin owns key derivation, the key store, and the view cache;
// the auth plugin drives them through its VaultKeys/VaultCache interfaces
// at login, logout, and password change.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container orchestration.
	e.GET("/healthz", a.healthz)

	// --- Vault plugin infrastructure ---
	keys := vault.NewSessionKeyStore(a.Redis, a.Config.Auth.SessionTTL)
	cache := vault.NewViewCache(a.Redis, a.Config.Vault.ViewCacheTTL)
	recordRepo := vault.NewRecordRepository(a.DB)
	vaultService := vault.NewVaultService(recordRepo, cache)

	// --- Auth plugin ---
	mail := mailer.NewFromConfig(a.Config.SMTP)
	userRepo := auth.NewUserRepository(a.DB)
	signer := auth.NewResetTokenSigner(a.Config.Auth.SecretKey, a.Config.Auth.ResetTokenTTL)
	authService := auth.NewAuthService(
		userRepo,
		a.Redis,
		keys,
		cache,
		mail,
		signer,
		a.Config.BaseURL,
		a.Config.Auth.SessionTTL,
		a.Config.Auth.ConfirmCodeTTL,
	)
	auth.RegisterRoutes(e, auth.NewHandler(authService))

	// --- Vault plugin routes (session required) ---
	vault.RegisterRoutes(e, vault.NewHandler(vaultService, keys), authService)
}

// healthz reports liveness of the process and its two backing stores.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"db": "ok", "redis": "ok"}

	if err := a.DB.PingContext(ctx); err != nil {
		checks["db"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, checks)
}
