// Package auth handles user accounts and session management for VaultKeep:
// registration, email confirmation, login, logout, and password reset.
// Login is where the vault key is born -- the freshly entered password is
// the only legitimate input for key derivation (the stored hash cannot be
// reversed), so this package derives the key and binds it to the session
// through the VaultKeys interface.
package auth

import (
	"time"
)

// User represents a registered account. EncryptionSalt is generated exactly
// once at registration and never regenerated -- all of the user's vault
// ciphertext is bound to it.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"` // Never expose in JSON responses.
	IsConfirmed    bool       `json:"is_confirmed"`
	EncryptionSalt []byte     `json:"-"` // Never expose.
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted at registration.
type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// LoginRequest holds the data submitted at login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ConfirmRequest holds the emailed confirmation code.
type ConfirmRequest struct {
	Code string `json:"code" form:"code"`
}

// ForgotPasswordRequest holds the email for a password-reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest holds the reset token and replacement password.
type ResetPasswordRequest struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
}

// --- Session ---

// Session is an authenticated user session stored in Redis. The session
// token is the key; this struct is the JSON-encoded value. The derived
// vault key is NOT part of the session blob -- it lives in the vault key
// store under the same token and the same TTL.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
