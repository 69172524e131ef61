package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KDF parameters. These are part of the ciphertext contract: changing them
// changes every derived key and makes existing ciphertext undecryptable.
const (
	kdfIterations = 100_000
	kdfKeyLen     = 32
	saltLen       = 16
)

// DecryptFailedSentinel is rendered in place of a field that could not be
// decrypted. It is deliberately distinguishable from an empty value so users
// can tell "failed to decrypt" from "genuinely blank".
const DecryptFailedSentinel = "[decryption error]"

// DeriveKey derives the vault key from a login password and the user's
// per-account salt: PBKDF2-HMAC-SHA256, 100k iterations, 32-byte output,
// base64url-encoded. Deterministic -- the server never stores the password,
// so the identical key must come out of every login with the same password.
func DeriveKey(password string, salt []byte) string {
	raw := pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New)
	return base64.URLEncoding.EncodeToString(raw)
}

// NewSalt returns a fresh 16-byte random salt. Generated exactly once per
// user at registration; regenerating it would orphan all prior ciphertext.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// decodeKey turns the textual key back into raw AES-256 key bytes.
func decodeKey(key string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(raw) != kdfKeyLen {
		return nil, fmt.Errorf("key is %d bytes, want %d", len(raw), kdfKeyLen)
	}
	return raw, nil
}

// EncryptField encrypts a single string field with AES-256-GCM. The random
// nonce is prepended to the ciphertext and the whole blob is base64url-
// encoded so it can live in a text column. GCM authenticates the ciphertext,
// so tampering or a wrong key is detected at decrypt time instead of
// producing garbage.
func EncryptField(plaintext, key string) (string, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Blob layout: [nonce][ciphertext+tag]
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptResult is the explicit outcome of a field decryption. A failed
// decryption is an expected state (wrong key, corrupted blob), not an
// exceptional one -- one bad field must never abort a whole record list.
type DecryptResult struct {
	Plaintext string
	OK        bool
}

// OrSentinel returns the plaintext, or the failure sentinel when the
// decryption did not succeed.
func (r DecryptResult) OrSentinel() string {
	if !r.OK {
		return DecryptFailedSentinel
	}
	return r.Plaintext
}

// DecryptField reverses EncryptField. Every failure mode -- malformed
// base64, truncated blob, wrong key, flipped ciphertext bit -- comes back
// as a not-OK result rather than an error.
func DecryptField(ciphertext, key string) DecryptResult {
	raw, err := decodeKey(key)
	if err != nil {
		return DecryptResult{}
	}

	blob, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return DecryptResult{}
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return DecryptResult{}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return DecryptResult{}
	}

	if len(blob) < gcm.NonceSize() {
		return DecryptResult{}
	}

	nonce, ct := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return DecryptResult{}
	}

	return DecryptResult{Plaintext: string(plaintext), OK: true}
}
