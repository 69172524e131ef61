package vault

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// VaultService defines the business logic contract for the credential
// vault. Handlers call these methods -- they never touch the repository,
// cipher, or cache directly. Every method taking a key expects the caller
// to have fetched it from the session key store; an empty key is rejected.
type VaultService interface {
	List(ctx context.Context, userID, key string) ([]RecordView, error)
	Create(ctx context.Context, userID, key string, req RecordRequest) (*RecordView, error)
	Update(ctx context.Context, userID, key, id string, req RecordRequest) error
	Delete(ctx context.Context, userID, key string, ids []string) ([]RecordView, error)
	Search(ctx context.Context, userID, key, query string) ([]RecordView, error)
	Export(ctx context.Context, userID, key string, w io.Writer) error
	Import(ctx context.Context, userID, key string, r io.Reader, replaceExisting bool) (*ImportResult, error)
	Count(ctx context.Context, userID string) (int, error)
}

// vaultService implements VaultService.
type vaultService struct {
	repo  RecordRepository
	cache ViewCache
}

// NewVaultService creates a vault service with the given dependencies.
func NewVaultService(repo RecordRepository, cache ViewCache) VaultService {
	return &vaultService{repo: repo, cache: cache}
}

// decryptView decrypts one stored record into its transient view. A field
// that fails to decrypt degrades to the sentinel; the record still carries
// its id/url/site so the owner can edit or delete it.
func decryptView(rec *Record, key string) RecordView {
	login := DecryptField(rec.LoginEnc, key)
	password := DecryptField(rec.PasswordEnc, key)
	if !login.OK || !password.OK {
		slog.Warn("record field failed to decrypt",
			slog.String("record_id", rec.ID),
			slog.String("user_id", rec.UserID),
		)
	}
	return RecordView{
		ID:          rec.ID,
		URL:         rec.URL,
		Site:        rec.Site,
		Login:       login.OrSentinel(),
		Password:    password.OrSentinel(),
		Description: rec.Description,
	}
}

// loader returns a cache Loader that reads and decrypts the user's records.
func (s *vaultService) loader(userID, key string) Loader {
	return func(ctx context.Context) ([]RecordView, error) {
		recs, err := s.repo.ListByUser(ctx, userID)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("loading records: %w", err))
		}
		views := make([]RecordView, 0, len(recs))
		for i := range recs {
			views = append(views, decryptView(&recs[i], key))
		}
		return views, nil
	}
}

// requireKey guards every decrypting operation. An authenticated session
// without a vault key must re-login, never proceed with an empty key.
func requireKey(key string) error {
	if key == "" {
		return apperror.NewUnauthorized("vault session expired, please log in again")
	}
	return nil
}

// List returns the user's decrypted record view, from cache when live.
func (s *vaultService) List(ctx context.Context, userID, key string) ([]RecordView, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	return s.cache.GetOrLoad(ctx, userID, s.loader(userID, key))
}

// Create encrypts and stores a new record, then invalidates the view cache.
// The cache is left untouched when the write fails.
func (s *vaultService) Create(ctx context.Context, userID, key string, req RecordRequest) (*RecordView, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	if err := validateRecordRequest(req); err != nil {
		return nil, err
	}

	rec, err := encryptRecord(userID, key, req, time.Now().UTC())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("encrypting record: %w", err))
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating record: %w", err))
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("invalidating view cache after create", slog.Any("error", err))
	}

	slog.Info("record created",
		slog.String("record_id", rec.ID),
		slog.String("user_id", userID),
	)

	view := decryptView(rec, key)
	return &view, nil
}

// Update re-encrypts a record's credential fields, then invalidates.
func (s *vaultService) Update(ctx context.Context, userID, key, id string, req RecordRequest) error {
	if err := requireKey(key); err != nil {
		return err
	}
	if err := validateRecordRequest(req); err != nil {
		return err
	}

	// Ownership check: FindByID is scoped to the user.
	rec, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}

	loginEnc, err := EncryptField(req.Login, key)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("encrypting login: %w", err))
	}
	passwordEnc, err := EncryptField(req.Password, key)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("encrypting password: %w", err))
	}

	rec.URL = strings.TrimSpace(req.URL)
	rec.Site = strings.TrimSpace(req.Site)
	rec.LoginEnc = loginEnc
	rec.PasswordEnc = passwordEnc
	rec.Description = req.Description
	rec.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("invalidating view cache after update", slog.Any("error", err))
	}

	return nil
}

// Delete removes records by ID, invalidates the cache, and returns the
// rebuilt view so the caller can render the remaining records immediately.
func (s *vaultService) Delete(ctx context.Context, userID, key string, ids []string) ([]RecordView, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperror.NewBadRequest("no record ids given")
	}

	n, err := s.repo.Delete(ctx, userID, ids)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("deleting records: %w", err))
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("invalidating view cache after delete", slog.Any("error", err))
	}

	slog.Info("records deleted",
		slog.Int64("count", n),
		slog.String("user_id", userID),
	)

	// Rebuild and re-warm so the next list is a cache hit.
	views, err := s.loader(userID, key)(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Warm(ctx, userID, views)
	return views, nil
}

// Search filters the decrypted view by a free-text query.
func (s *vaultService) Search(ctx context.Context, userID, key, query string) ([]RecordView, error) {
	views, err := s.List(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	return Search(views, query), nil
}

// Export writes the user's decrypted records as CSV.
func (s *vaultService) Export(ctx context.Context, userID, key string, w io.Writer) error {
	views, err := s.List(ctx, userID, key)
	if err != nil {
		return err
	}
	return ExportCSV(w, views)
}

// Import parses a CSV file, merges it with the user's existing records by
// identity key, re-encrypts the merged set, and atomically replaces the
// stored set. The cache is invalidated only after the swap commits.
func (s *vaultService) Import(ctx context.Context, userID, key string, r io.Reader, replaceExisting bool) (*ImportResult, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}

	imported, err := ParseCSV(r)
	if err != nil {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unreadable csv: %v", err))
	}

	// Read existing records straight from storage, not the cache: the merge
	// must see exactly what will be replaced, and we need the original
	// created_at stamps to preserve record order across the swap.
	recs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("loading records: %w", err))
	}

	existing := make([]RecordView, 0, len(recs))
	orig := make(map[string]*Record, len(recs))
	for i := range recs {
		view := decryptView(&recs[i], key)
		existing = append(existing, view)
		orig[view.ID] = &recs[i]
	}

	merged := Merge(existing, imported, replaceExisting)

	now := time.Now().UTC()
	out := make([]Record, 0, len(merged))
	for i, view := range merged {
		req := RecordRequest{
			URL:         view.URL,
			Site:        view.Site,
			Login:       view.Login,
			Password:    view.Password,
			Description: view.Description,
		}
		rec, err := encryptRecord(userID, key, req, now)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("encrypting merged record: %w", err))
		}
		if src, ok := orig[view.ID]; ok {
			rec.ID = src.ID
			rec.CreatedAt = src.CreatedAt
			// A field that failed to decrypt went through the merge as the
			// sentinel. Re-encrypting that sentinel would destroy ciphertext
			// the owner could still recover under the old password, so the
			// original bytes are kept unless the import replaced the value.
			if view.Login == DecryptFailedSentinel {
				rec.LoginEnc = src.LoginEnc
			}
			if view.Password == DecryptFailedSentinel {
				rec.PasswordEnc = src.PasswordEnc
			}
		} else {
			// Appended records get staggered stamps so the (created_at, id)
			// sort preserves their input order.
			rec.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		out = append(out, *rec)
	}

	if err := s.repo.ReplaceAll(ctx, userID, out); err != nil {
		// The swap rolled back; the cache still matches storage, leave it.
		return nil, apperror.NewInternal(fmt.Errorf("replacing records: %w", err))
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("invalidating view cache after import", slog.Any("error", err))
	}

	result := &ImportResult{
		Parsed: len(imported),
		Total:  len(merged),
		Added:  len(merged) - len(existing),
	}
	if replaceExisting {
		result.Updated = countUpdated(existing, imported)
	}

	slog.Info("csv import merged",
		slog.String("user_id", userID),
		slog.Int("parsed", result.Parsed),
		slog.Int("added", result.Added),
		slog.Int("updated", result.Updated),
	)

	return result, nil
}

// Count returns the user's stored record count. No key needed -- counting
// never touches ciphertext.
func (s *vaultService) Count(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("counting records: %w", err))
	}
	return count, nil
}

// --- Helpers ---

// encryptRecord builds a stored Record from a request, encrypting the
// credential fields with the session key.
func encryptRecord(userID, key string, req RecordRequest, now time.Time) (*Record, error) {
	loginEnc, err := EncryptField(req.Login, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting login: %w", err)
	}
	passwordEnc, err := EncryptField(req.Password, key)
	if err != nil {
		return nil, fmt.Errorf("encrypting password: %w", err)
	}

	return &Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		URL:         strings.TrimSpace(req.URL),
		Site:        strings.TrimSpace(req.Site),
		LoginEnc:    loginEnc,
		PasswordEnc: passwordEnc,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// countUpdated reports how many imported rows actually changed a matching
// existing record. An identity match whose overlay is a no-op (a sparse
// row, or values identical to what is stored) does not count.
func countUpdated(existing, imported []RecordView) int {
	existingByKey := make(map[string]RecordView, len(existing))
	for _, ex := range existing {
		k := identityKey(ex)
		if _, ok := existingByKey[k]; !ok {
			existingByKey[k] = ex
		}
	}

	updated := 0
	counted := make(map[string]bool, len(imported))
	for _, imp := range imported {
		k := identityKey(imp)
		if counted[k] {
			continue
		}
		counted[k] = true
		if ex, ok := existingByKey[k]; ok && overlay(ex, imp) != ex {
			updated++
		}
	}
	return updated
}

// validateRecordRequest checks the fields for a create/update.
func validateRecordRequest(req RecordRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return apperror.NewValidation("url is required")
	}
	if req.Login == "" {
		return apperror.NewValidation("login is required")
	}
	if req.Password == "" {
		return apperror.NewValidation("password is required")
	}
	if len(req.URL) > 500 {
		return apperror.NewValidation("url must be at most 500 characters")
	}
	if len(req.Site) > 255 {
		return apperror.NewValidation("site must be at most 255 characters")
	}
	if len(req.Description) > 1000 {
		return apperror.NewValidation("description must be at most 1000 characters")
	}
	return nil
}
