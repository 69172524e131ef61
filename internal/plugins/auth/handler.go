package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// sessionCookieName is the HTTP cookie used to store the session token.
const sessionCookieName = "vaultkeep_session"

// Handler handles HTTP requests for authentication. Handlers are thin:
// they bind the request, call the service, and write JSON. No business
// logic lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates an auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Register creates a new account (POST /register). The account starts
// unconfirmed; a confirmation code is sent in the same request so the
// typical flow is register -> type code -> login.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if msg := validateRegisterRequest(&req); msg != "" {
		return apperror.NewValidation(msg)
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	// Best effort -- the code can be re-requested via /confirm/:id/send.
	_ = h.service.SendConfirmCode(c.Request().Context(), user.ID)

	return c.JSON(http.StatusCreated, user)
}

// Login authenticates and opens a session (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, user, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	setSessionCookie(c, token)

	return c.JSON(http.StatusOK, user)
}

// Logout destroys the session, the vault key, and the cached decrypted
// view (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if token := GetSessionCookie(c); token != "" {
		if err := h.service.Logout(c.Request().Context(), token); err != nil {
			return err
		}
	}

	ClearSessionCookie(c)

	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

// SendConfirmCode emails a fresh confirmation code (POST /confirm/:user_id/send).
func (h *Handler) SendConfirmCode(c echo.Context) error {
	if err := h.service.SendConfirmCode(c.Request().Context(), c.Param("user_id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "code sent"})
}

// ConfirmAccount checks the emailed code (POST /confirm/:user_id).
func (h *Handler) ConfirmAccount(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ConfirmAccount(c.Request().Context(), c.Param("user_id"), req.Code); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "confirmed"})
}

// ForgotPassword emails a reset link (POST /forgot-password). Always
// answers the same way to avoid leaking which emails exist.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if strings.TrimSpace(req.Email) == "" {
		return apperror.NewValidation("email is required")
	}

	_ = h.service.InitiatePasswordReset(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"status": "if that email is registered, a reset link has been sent",
	})
}

// ResetPassword applies a new password from a reset link (POST /reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if req.Token == "" {
		return apperror.NewBadRequest("reset token is required")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "password reset"})
}

// --- Cookie helpers ---

// GetSessionCookie reads the session token from the request cookie.
func GetSessionCookie(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie on the response. HttpOnly so
// scripts can't read it; Secure when the request arrived over TLS.
func setSessionCookie(c echo.Context, token string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie by setting MaxAge to -1.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// --- Validation helpers ---

// validateRegisterRequest performs basic server-side validation on the
// registration payload. Returns an error message or empty string.
func validateRegisterRequest(req *RegisterRequest) string {
	if strings.TrimSpace(req.Email) == "" {
		return "email is required"
	}
	if !strings.Contains(req.Email, "@") {
		return "email is invalid"
	}
	if strings.TrimSpace(req.Username) == "" {
		return "username is required"
	}
	if len(req.Username) > 100 {
		return "username must be at most 100 characters"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	return ""
}
