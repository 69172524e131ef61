package vault

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// --- In-memory repository ---

// memRecordRepo implements RecordRepository on a slice. ListByUser mimics
// the SQL ordering (created_at, id). Optional func fields override single
// methods for failure injection.
type memRecordRepo struct {
	recs []Record

	createFn     func(ctx context.Context, rec *Record) error
	replaceAllFn func(ctx context.Context, userID string, recs []Record) error
}

func (m *memRecordRepo) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	var out []Record
	for _, rec := range m.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memRecordRepo) FindByID(ctx context.Context, userID, id string) (*Record, error) {
	for i := range m.recs {
		if m.recs[i].UserID == userID && m.recs[i].ID == id {
			rec := m.recs[i]
			return &rec, nil
		}
	}
	return nil, apperror.NewNotFound("record not found")
}

func (m *memRecordRepo) Create(ctx context.Context, rec *Record) error {
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memRecordRepo) Update(ctx context.Context, rec *Record) error {
	for i := range m.recs {
		if m.recs[i].UserID == rec.UserID && m.recs[i].ID == rec.ID {
			m.recs[i] = *rec
			return nil
		}
	}
	return apperror.NewNotFound("record not found")
}

func (m *memRecordRepo) Delete(ctx context.Context, userID string, ids []string) (int64, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var kept []Record
	var n int64
	for _, rec := range m.recs {
		if rec.UserID == userID && wanted[rec.ID] {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	m.recs = kept
	return n, nil
}

func (m *memRecordRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, rec := range m.recs {
		if rec.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memRecordRepo) ReplaceAll(ctx context.Context, userID string, recs []Record) error {
	if m.replaceAllFn != nil {
		return m.replaceAllFn(ctx, userID, recs)
	}
	var kept []Record
	for _, rec := range m.recs {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	m.recs = append(kept, recs...)
	return nil
}

// --- Test helpers ---

const testUserID = "user-1"

// newTestVaultService wires a service against the in-memory repo and a
// miniredis-backed view cache.
func newTestVaultService(t *testing.T, repo *memRecordRepo) (VaultService, ViewCache) {
	t.Helper()
	_, rdb := newTestRedis(t)
	cache := NewViewCache(rdb, 5*time.Minute)
	return NewVaultService(repo, cache), cache
}

func testKey(password string) string {
	return DeriveKey(password, []byte("0123456789abcdef"))
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- Key guard ---

func TestVaultService_EmptyKeyRejected(t *testing.T) {
	svc, _ := newTestVaultService(t, &memRecordRepo{})
	ctx := context.Background()

	if _, err := svc.List(ctx, testUserID, ""); err == nil {
		t.Error("List: expected error for empty key")
	} else {
		assertAppError(t, err, 401)
	}

	_, err := svc.Create(ctx, testUserID, "", RecordRequest{URL: "a.com", Login: "alice", Password: "pw"})
	assertAppError(t, err, 401)

	_, err = svc.Delete(ctx, testUserID, "", []string{"1"})
	assertAppError(t, err, 401)

	_, err = svc.Import(ctx, testUserID, "", strings.NewReader("url,username,password\n"), false)
	assertAppError(t, err, 401)
}

// --- Create / List ---

func TestVaultService_CreateAndList(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	view, err := svc.Create(ctx, testUserID, key, RecordRequest{
		URL: "github.com", Site: "GitHub", Login: "alice", Password: "s3cret", Description: "work",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.ID == "" {
		t.Error("expected generated record id")
	}
	if view.Login != "alice" || view.Password != "s3cret" {
		t.Errorf("expected decrypted view, got %+v", view)
	}

	// The stored form must be ciphertext, not plaintext.
	if repo.recs[0].LoginEnc == "alice" || repo.recs[0].PasswordEnc == "s3cret" {
		t.Error("expected encrypted fields in storage")
	}

	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 record, got %d", len(views))
	}
	if views[0].Password != "s3cret" {
		t.Errorf("expected password s3cret, got %s", views[0].Password)
	}
}

func TestVaultService_CreateInvalidatesCachedView(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	if _, err := svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "pw1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.List(ctx, testUserID, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The list is now cached. A second create must invalidate it so the
	// next list reflects both records.
	if _, err := svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "pw2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 records after create, got %d", len(views))
	}
}

func TestVaultService_FailedCreateKeepsCache(t *testing.T) {
	repo := &memRecordRepo{
		createFn: func(ctx context.Context, rec *Record) error {
			return errors.New("db write error")
		},
	}
	svc, cache := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	stale := []RecordView{{ID: "cached", URL: "a.com", Login: "alice", Password: "pw"}}
	cache.Warm(ctx, testUserID, stale)

	_, err := svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "pw"})
	assertAppError(t, err, 500)

	// A failed write must not evict the cache: the entry still matches
	// what storage actually holds.
	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].ID != "cached" {
		t.Errorf("expected cached view to survive failed write, got %+v", views)
	}
}

func TestVaultService_CreateValidation(t *testing.T) {
	svc, _ := newTestVaultService(t, &memRecordRepo{})
	ctx := context.Background()
	key := testKey("hunter2")

	tests := []struct {
		name string
		req  RecordRequest
	}{
		{"missing url", RecordRequest{Login: "alice", Password: "pw"}},
		{"missing login", RecordRequest{URL: "a.com", Password: "pw"}},
		{"missing password", RecordRequest{URL: "a.com", Login: "alice"}},
		{"url too long", RecordRequest{URL: strings.Repeat("a", 501), Login: "alice", Password: "pw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, testUserID, key, tt.req)
			assertAppError(t, err, 422)
		})
	}
}

// --- Wrong key degrades to sentinel ---

func TestVaultService_WrongKeyListsSentinels(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, testUserID, testKey("hunter2"), RecordRequest{
		URL: "a.com", Site: "A", Login: "alice", Password: "s3cret",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A different password derives a different key. Listing must still
	// succeed, with the credential fields degraded to the sentinel.
	views, err := svc.List(ctx, testUserID, testKey("wrong-password"))
	if err != nil {
		t.Fatalf("expected sentinel degradation, got error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 record, got %d", len(views))
	}
	if views[0].Login != DecryptFailedSentinel || views[0].Password != DecryptFailedSentinel {
		t.Errorf("expected sentinel fields, got %+v", views[0])
	}
	if views[0].URL != "a.com" || views[0].Site != "A" {
		t.Error("expected clear fields to survive a failed decryption")
	}
}

// --- Update ---

func TestVaultService_Update(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	view, err := svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "old"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = svc.Update(ctx, testUserID, key, view.ID, RecordRequest{URL: "a.com", Login: "alice", Password: "new"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if views[0].Password != "new" {
		t.Errorf("expected updated password, got %s", views[0].Password)
	}
}

func TestVaultService_UpdateNotFound(t *testing.T) {
	svc, _ := newTestVaultService(t, &memRecordRepo{})
	err := svc.Update(context.Background(), testUserID, testKey("hunter2"), "missing",
		RecordRequest{URL: "a.com", Login: "alice", Password: "pw"})
	assertAppError(t, err, 404)
}

func TestVaultService_UpdateOtherUsersRecord(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	view, err := svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another user addressing the same record id must get a 404, never a hit.
	err = svc.Update(ctx, "user-2", key, view.ID, RecordRequest{URL: "a.com", Login: "alice", Password: "stolen"})
	assertAppError(t, err, 404)
}

// --- Delete ---

func TestVaultService_DeleteReturnsRemaining(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	v1, _ := svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "pw1"})
	v2, _ := svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "pw2"})

	views, err := svc.Delete(ctx, testUserID, key, []string{v1.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].ID != v2.ID {
		t.Errorf("expected only %s to remain, got %+v", v2.ID, views)
	}
}

func TestVaultService_DeleteNoIDs(t *testing.T) {
	svc, _ := newTestVaultService(t, &memRecordRepo{})
	_, err := svc.Delete(context.Background(), testUserID, testKey("hunter2"), nil)
	assertAppError(t, err, 400)
}

// --- Search ---

func TestVaultService_Search(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "github.com", Login: "alice", Password: "pw1"})
	svc.Create(ctx, testUserID, key, RecordRequest{URL: "bank.example", Login: "bob", Password: "pw2"})

	views, err := svc.Search(ctx, testUserID, key, "github")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].URL != "github.com" {
		t.Errorf("expected the github record, got %+v", views)
	}
}

// --- Export / Import ---

func TestVaultService_ExportImportRoundTrip(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Site: "A", Login: "alice", Password: "s3cret"})

	var buf bytes.Buffer
	if err := svc.Export(ctx, testUserID, key, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Import the export into a second, empty vault under a different key.
	repo2 := &memRecordRepo{}
	svc2, _ := newTestVaultService(t, repo2)
	otherKey := testKey("other-password")

	result, err := svc2.Import(ctx, "user-2", otherKey, &buf, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Parsed != 1 || result.Added != 1 {
		t.Errorf("expected 1 parsed and 1 added, got %+v", result)
	}

	views, err := svc2.List(ctx, "user-2", otherKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].Login != "alice" || views[0].Password != "s3cret" {
		t.Errorf("expected round-tripped record, got %+v", views)
	}
}

func TestVaultService_ImportMergesAndCounts(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "old"})
	svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "pw2"})

	csv := "url,username,password\nA.COM,ALICE,updated\nc.com,carol,pw3\n"
	result, err := svc.Import(ctx, testUserID, key, strings.NewReader(csv), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Parsed != 2 || result.Total != 3 || result.Added != 1 || result.Updated != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 records, got %d", len(views))
	}
	// Existing order first, appended imports after.
	if views[0].URL != "a.com" || views[0].Password != "updated" {
		t.Errorf("expected overlaid first record, got %+v", views[0])
	}
	if views[1].URL != "b.com" || views[1].Password != "pw2" {
		t.Errorf("expected untouched second record, got %+v", views[1])
	}
	if views[2].Login != "carol" {
		t.Errorf("expected appended import last, got %+v", views[2])
	}
}

func TestVaultService_ImportKeepsUndecryptableCiphertext(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	oldKey := testKey("old-password")

	if _, err := svc.Create(ctx, testUserID, oldKey, RecordRequest{
		URL: "a.com", Login: "alice", Password: "s3cret",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	origLoginEnc := repo.recs[0].LoginEnc
	origPasswordEnc := repo.recs[0].PasswordEnc

	// After a password reset the session key changes and the stored record
	// only decrypts to the sentinel. An import that does not touch it must
	// keep the original ciphertext so the old password can still recover it.
	newKey := testKey("new-password")
	csv := "url,username,password\nb.com,bob,pw2\n"
	if _, err := svc.Import(ctx, testUserID, newKey, strings.NewReader(csv), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kept *Record
	for i := range repo.recs {
		if repo.recs[i].URL == "a.com" {
			kept = &repo.recs[i]
		}
	}
	if kept == nil {
		t.Fatal("expected the existing record to survive the import")
	}
	if kept.LoginEnc != origLoginEnc || kept.PasswordEnc != origPasswordEnc {
		t.Error("expected original ciphertext to be preserved, not a re-encrypted sentinel")
	}
	if got := DecryptField(kept.PasswordEnc, oldKey); !got.OK || got.Plaintext != "s3cret" {
		t.Errorf("expected old key to still decrypt the record, got %+v", got)
	}
}

func TestVaultService_ImportCountsOnlyChangedRowsAsUpdated(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Site: "A", Login: "alice", Password: "pw1", Description: "d"})
	svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "old"})
	svc.Create(ctx, testUserID, key, RecordRequest{URL: "c.com", Login: "carol", Password: "pw3"})

	// Row one repeats the stored values exactly, row three is sparse:
	// both match by identity but alter nothing. Only row two changes a field.
	csv := "url,username,password,notes,title\n" +
		"a.com,alice,pw1,d,A\n" +
		"b.com,bob,new,,\n" +
		"c.com,carol,,,\n"
	result, err := svc.Import(ctx, testUserID, key, strings.NewReader(csv), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("expected only the changed row counted as updated, got %+v", result)
	}
	if result.Added != 0 || result.Total != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestVaultService_ImportWithoutReplaceSkipsMatches(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "old"})

	csv := "url,username,password\na.com,alice,new\n"
	result, err := svc.Import(ctx, testUserID, key, strings.NewReader(csv), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Updated != 0 || result.Added != 0 {
		t.Errorf("expected no changes, got %+v", result)
	}

	views, _ := svc.List(ctx, testUserID, key)
	if views[0].Password != "old" {
		t.Errorf("expected existing password to survive, got %s", views[0].Password)
	}
}

func TestVaultService_ImportEmptyCSV(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "pw"})

	result, err := svc.Import(ctx, testUserID, key, strings.NewReader(""), true)
	if err != nil {
		t.Fatalf("expected empty import to be a no-op, got: %v", err)
	}
	if result.Parsed != 0 || result.Added != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	count, _ := svc.Count(ctx, testUserID)
	if count != 1 {
		t.Errorf("expected vault unchanged, got %d records", count)
	}
}

func TestVaultService_ImportFailedSwapKeepsCache(t *testing.T) {
	repo := &memRecordRepo{
		replaceAllFn: func(ctx context.Context, userID string, recs []Record) error {
			return errors.New("tx rollback")
		},
	}
	svc, cache := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	stale := []RecordView{{ID: "cached", URL: "a.com", Login: "alice", Password: "pw"}}
	cache.Warm(ctx, testUserID, stale)

	csv := "url,username,password\nb.com,bob,pw\n"
	_, err := svc.Import(ctx, testUserID, key, strings.NewReader(csv), true)
	assertAppError(t, err, 500)

	views, err := svc.List(ctx, testUserID, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].ID != "cached" {
		t.Errorf("expected cache untouched after failed swap, got %+v", views)
	}
}

// --- Count ---

func TestVaultService_Count(t *testing.T) {
	repo := &memRecordRepo{}
	svc, _ := newTestVaultService(t, repo)
	ctx := context.Background()
	key := testKey("hunter2")

	svc.Create(ctx, testUserID, key, RecordRequest{URL: "a.com", Login: "alice", Password: "pw"})
	svc.Create(ctx, testUserID, key, RecordRequest{URL: "b.com", Login: "bob", Password: "pw"})

	count, err := svc.Count(ctx, testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}
