package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// confirmCodePrefix is the Redis key prefix for emailed confirmation codes.
const confirmCodePrefix = "confirm:"

// userSessionsPrefix is the Redis key prefix for the per-user set of live
// session tokens. It exists so a password reset can revoke every session
// at once -- session blobs alone are only reachable by token.
const userSessionsPrefix = "usersessions:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// saltBytes is the size of the per-user encryption salt. Fixed by the
// vault's ciphertext format -- never change it for existing users.
const saltBytes = 16

// --- Cross-plugin contracts ---
// Declared here so auth never imports the vault plugin. The concrete
// implementations live in internal/plugins/vault and are wired in app.go.

// VaultKeys derives the per-user vault key and binds it to a session
// token. Derive must be deterministic: the same password and salt yield
// the same key on every login, which is the whole reason re-login can
// decrypt records encrypted in an earlier session.
type VaultKeys interface {
	Derive(password string, salt []byte) string
	Put(ctx context.Context, sessionToken, key string) error
	Remove(ctx context.Context, sessionToken string) error
}

// VaultCache invalidates a user's decrypted-view cache entry. Logout wipes
// the entry so plaintext never survives the session that produced it.
type VaultCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// MailSender delivers account emails (confirmation codes, reset links).
// Implemented by internal/plugins/mailer.
type MailSender interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// UserLoader is the minimal lookup contract other components need to
// resolve a session's user. Satisfied by UserRepository.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	Logout(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (*Session, error)

	SendConfirmCode(ctx context.Context, userID string) error
	ConfirmAccount(ctx context.Context, userID, code string) error

	InitiatePasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// authService implements AuthService with bcrypt hashing, Redis sessions,
// and session-bound vault keys.
type authService struct {
	repo       UserRepository
	redis      *redis.Client
	keys       VaultKeys
	cache      VaultCache
	mail       MailSender
	signer     *ResetTokenSigner
	baseURL    string
	sessionTTL time.Duration
	confirmTTL time.Duration
}

// NewAuthService creates an auth service with the given dependencies.
func NewAuthService(
	repo UserRepository,
	rdb *redis.Client,
	keys VaultKeys,
	cache VaultCache,
	mail MailSender,
	signer *ResetTokenSigner,
	baseURL string,
	sessionTTL, confirmTTL time.Duration,
) AuthService {
	return &authService{
		repo:       repo,
		redis:      rdb,
		keys:       keys,
		cache:      cache,
		mail:       mail,
		signer:     signer,
		baseURL:    baseURL,
		sessionTTL: sessionTTL,
		confirmTTL: confirmTTL,
	}
}

// Register creates a new, unconfirmed account. The encryption salt is
// generated here, exactly once -- it is immutable for the account's
// lifetime because every piece of vault ciphertext depends on it.
func (s *authService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	// Check for duplicates before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating encryption salt: %w", err))
	}

	user := &User{
		ID:             uuid.NewString(),
		Email:          email,
		Username:       strings.TrimSpace(input.Username),
		PasswordHash:   string(hash),
		IsConfirmed:    false,
		EncryptionSalt: salt,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login authenticates by email and password. On success it creates a Redis
// session and binds the freshly derived vault key to the session token --
// the login-time plaintext password is the only place that key can come
// from, since only the hash is stored.
func (s *authService) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		// Don't reveal whether the email exists -- use a generic message.
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			return "", nil, apperror.NewUnauthorized("invalid email or password")
		}
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		return "", nil, apperror.NewUnauthorized("invalid email or password")
	}

	if !user.IsConfirmed {
		return "", nil, apperror.NewForbidden("please confirm your account before logging in")
	}

	token, err := s.createSession(ctx, user)
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	// Bind the derived vault key to the session. If this fails the session
	// is useless for vault access, so tear it down and fail the login.
	vaultKey := s.keys.Derive(input.Password, user.EncryptionSalt)
	if err := s.keys.Put(ctx, token, vaultKey); err != nil {
		_ = s.redis.Del(ctx, sessionKeyPrefix+token).Err()
		_ = s.redis.SRem(ctx, userSessionsPrefix+user.ID, token).Err()
		return "", nil, apperror.NewInternal(fmt.Errorf("binding vault key: %w", err))
	}

	// Non-critical, fire-and-forget.
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return token, user, nil
}

// Logout destroys the session, drops the session-bound vault key, and
// wipes the user's decrypted-view cache entry. All three happen before
// returning so no plaintext survives the session.
func (s *authService) Logout(ctx context.Context, token string) error {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		// Session already gone -- still make sure the key is too.
		_ = s.keys.Remove(ctx, token)
		return nil
	}

	if err := s.keys.Remove(ctx, token); err != nil {
		return apperror.NewInternal(fmt.Errorf("removing vault key: %w", err))
	}
	if err := s.cache.Invalidate(ctx, session.UserID); err != nil {
		return apperror.NewInternal(fmt.Errorf("wiping view cache: %w", err))
	}
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session: %w", err))
	}
	_ = s.redis.SRem(ctx, userSessionsPrefix+session.UserID, token).Err()

	slog.Info("user logged out", slog.String("user_id", session.UserID))

	return nil
}

// ValidateSession looks up a session token in Redis and returns the
// session data if it exists and hasn't expired.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// createSession generates a random session token and stores the session
// blob in Redis with the configured TTL.
func (s *authService) createSession(ctx context.Context, user *User) (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(b)

	session := Session{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+token, data, s.sessionTTL).Err(); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	// Index the token under the user so revokeSessions can find it later.
	// The index outlives its newest session by at most the session TTL.
	if err := s.redis.SAdd(ctx, userSessionsPrefix+user.ID, token).Err(); err != nil {
		_ = s.redis.Del(ctx, sessionKeyPrefix+token).Err()
		return "", fmt.Errorf("indexing session: %w", err)
	}
	_ = s.redis.Expire(ctx, userSessionsPrefix+user.ID, s.sessionTTL).Err()

	return token, nil
}

// revokeSessions destroys every live session for the user together with
// its bound vault key. Tokens whose session already expired are still
// swept so no stale key can outlive this call.
func (s *authService) revokeSessions(ctx context.Context, userID string) error {
	tokens, err := s.redis.SMembers(ctx, userSessionsPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	for _, token := range tokens {
		if err := s.keys.Remove(ctx, token); err != nil {
			return fmt.Errorf("removing vault key: %w", err)
		}
		if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}
	if err := s.redis.Del(ctx, userSessionsPrefix+userID).Err(); err != nil {
		return fmt.Errorf("clearing session index: %w", err)
	}
	return nil
}

// --- Email confirmation ---

// SendConfirmCode generates a 6-digit code, stores it in Redis with a TTL,
// and emails it to the account's address.
func (s *authService) SendConfirmCode(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsConfirmed {
		return apperror.NewConflict("account is already confirmed")
	}

	code, err := generateConfirmCode()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("generating confirmation code: %w", err))
	}

	if err := s.redis.Set(ctx, confirmCodePrefix+userID, code, s.confirmTTL).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing confirmation code: %w", err))
	}

	body := fmt.Sprintf("Hello!\n\nYour confirmation code is: %s\n\nThank you for using VaultKeep.", code)
	if err := s.mail.SendMail(ctx, []string{user.Email}, "Confirmation Code for Your Account", body); err != nil {
		return apperror.NewInternal(fmt.Errorf("sending confirmation code: %w", err))
	}

	slog.Info("confirmation code sent", slog.String("user_id", userID))

	return nil
}

// ConfirmAccount checks the submitted code against the stored one and
// marks the account confirmed. The code is single-use.
func (s *authService) ConfirmAccount(ctx context.Context, userID, code string) error {
	stored, err := s.redis.Get(ctx, confirmCodePrefix+userID).Result()
	if err == redis.Nil {
		return apperror.NewBadRequest("no confirmation code pending, request a new one")
	}
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("reading confirmation code: %w", err))
	}

	if strings.TrimSpace(code) != stored {
		return apperror.NewBadRequest("invalid confirmation code")
	}

	if err := s.repo.SetConfirmed(ctx, userID); err != nil {
		return err
	}

	_ = s.redis.Del(ctx, confirmCodePrefix+userID).Err()

	slog.Info("account confirmed", slog.String("user_id", userID))

	return nil
}

// generateConfirmCode returns a random 6-digit code (100000-999999).
func generateConfirmCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100_000), nil
}

// --- Password reset ---

// InitiatePasswordReset emails a signed reset link. Always succeeds from
// the caller's perspective so responses don't leak which emails exist.
func (s *authService) InitiatePasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.signer.Sign(user.ID)
	if err != nil {
		slog.Error("signing reset token", slog.Any("error", err))
		return nil
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	body := fmt.Sprintf("To reset your password, open the link below:\n%s\n\nIf you did not request a password reset, simply ignore this message.", resetURL)
	if err := s.mail.SendMail(ctx, []string{user.Email}, "Password Reset", body); err != nil {
		slog.Error("sending reset email", slog.Any("error", err))
	}

	return nil
}

// ResetPassword verifies the reset token, replaces the login password
// hash, revokes all live sessions and their vault keys, and wipes the
// decrypted-view cache. The encryption salt is NOT regenerated and
// existing vault ciphertext is NOT re-encrypted: records encrypted under
// the old password will fail to decrypt (surfacing the decryption
// sentinel) until the user deals with them. Logged loudly because the
// data is effectively orphaned.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.signer.Verify(token)
	if err != nil {
		return err
	}

	if len(newPassword) < 8 {
		return apperror.NewValidation("password must be at least 8 characters")
	}
	if len(newPassword) > 128 {
		return apperror.NewValidation("password must be at most 128 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	// Every live session holds a vault key derived from the old password,
	// and the cached view was decrypted under that key. Both must die with
	// the reset or a post-reset login could be served pre-reset plaintext.
	if err := s.revokeSessions(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking sessions: %w", err))
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("wiping view cache: %w", err))
	}

	slog.Warn("login password reset without re-encryption; existing vault records are undecryptable under the new password",
		slog.String("user_id", userID),
	)

	return nil
}
