// Package vault implements the encrypted credential store: per-user key
// derivation, authenticated field encryption, the session key store, the
// decrypted-view cache, and CSV import/export with merge reconciliation.
//
// Records belong to exactly one user. The login and password columns are
// ciphertext produced with a key derived from the user's login password --
// the server never stores that password, so the key exists only for the
// lifetime of an authenticated session.
package vault

import "time"

// Record is the persisted form of a credential. LoginEnc and PasswordEnc
// hold ciphertext; url, site, and description are stored in the clear so
// lists and searches work even when decryption of a field fails.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	URL         string    `json:"url"`
	Site        string    `json:"site"`
	LoginEnc    string    `json:"-"`
	PasswordEnc string    `json:"-"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordView is the transient decrypted form of a Record. It is never
// persisted to MariaDB -- it lives only in the Redis view cache (with a
// short TTL) and in responses to the record's owner.
type RecordView struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Site        string `json:"site"`
	Login       string `json:"login"`
	Password    string `json:"password"`
	Description string `json:"description"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RecordRequest holds the fields for creating or updating a record.
type RecordRequest struct {
	URL         string `json:"url" form:"url"`
	Site        string `json:"site" form:"site"`
	Login       string `json:"login" form:"login"`
	Password    string `json:"password" form:"password"`
	Description string `json:"description" form:"description"`
}

// DeleteRequest holds the record IDs for a bulk delete.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// SearchRequest holds the free-text search query.
type SearchRequest struct {
	Q string `json:"q"`
}

// ImportResult summarizes a CSV import. Zero parsed rows is not an error --
// the merge simply leaves the vault unchanged.
type ImportResult struct {
	Parsed  int `json:"parsed"`
	Total   int `json:"total"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
}
