package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// RecordRepository defines the data access contract for vault records.
// Every query is scoped by user ID -- a record is only ever visible to its
// owner. All SQL lives in the concrete implementation.
type RecordRepository interface {
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	FindByID(ctx context.Context, userID, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, userID string, ids []string) (int64, error)
	CountByUser(ctx context.Context, userID string) (int, error)

	// ReplaceAll atomically swaps the user's whole record set for the given
	// one. Used by CSV import: either every merged record lands or none do.
	ReplaceAll(ctx context.Context, userID string, recs []Record) error
}

// recordRepository implements RecordRepository with hand-written MariaDB queries.
type recordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a record repository backed by the given DB pool.
func NewRecordRepository(db *sql.DB) RecordRepository {
	return &recordRepository{db: db}
}

const recordColumns = `id, user_id, url, site, login_enc, password_enc, description, created_at, updated_at`

// scanRecord reads one row into a Record.
func scanRecord(row interface{ Scan(...any) error }, rec *Record) error {
	return row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.URL,
		&rec.Site,
		&rec.LoginEnc,
		&rec.PasswordEnc,
		&rec.Description,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
}

// ListByUser returns all of a user's records, oldest first. The stable
// order matters: the cached decrypted view and CSV export inherit it.
func (r *recordRepository) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE user_id = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// FindByID retrieves one record, scoped to its owner.
// Returns apperror.NotFound if the record doesn't exist or belongs to
// someone else -- the two cases are indistinguishable on purpose.
func (r *recordRepository) FindByID(ctx context.Context, userID, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE user_id = ? AND id = ?`

	rec := &Record{}
	err := scanRecord(r.db.QueryRowContext(ctx, query, userID, id), rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying record by id: %w", err)
	}

	return rec, nil
}

// Create inserts a new record row.
func (r *recordRepository) Create(ctx context.Context, rec *Record) error {
	query := `INSERT INTO records (id, user_id, url, site, login_enc, password_enc, description, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.URL,
		rec.Site,
		rec.LoginEnc,
		rec.PasswordEnc,
		rec.Description,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	return nil
}

// Update rewrites a record's mutable fields, scoped to its owner.
func (r *recordRepository) Update(ctx context.Context, rec *Record) error {
	query := `UPDATE records
	          SET url = ?, site = ?, login_enc = ?, password_enc = ?, description = ?, updated_at = ?
	          WHERE user_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.URL,
		rec.Site,
		rec.LoginEnc,
		rec.PasswordEnc,
		rec.Description,
		rec.UpdatedAt,
		rec.UserID,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("record not found")
	}

	return nil
}

// Delete removes the given records, scoped to their owner. IDs that don't
// exist (or belong to someone else) are silently skipped; the returned
// count says how many rows actually went away.
func (r *recordRepository) Delete(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `DELETE FROM records WHERE user_id = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

// CountByUser returns how many records a user has stored.
func (r *recordRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// ReplaceAll swaps the user's record set inside a transaction. Any failure
// rolls the whole swap back so the set is never left half-mutated.
func (r *recordRepository) ReplaceAll(ctx context.Context, userID string, recs []Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	insert := `INSERT INTO records (id, user_id, url, site, login_enc, password_enc, description, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i := range recs {
		rec := &recs[i]
		if _, err := tx.ExecContext(ctx, insert,
			rec.ID,
			rec.UserID,
			rec.URL,
			rec.Site,
			rec.LoginEnc,
			rec.PasswordEnc,
			rec.Description,
			rec.CreatedAt,
			rec.UpdatedAt,
		); err != nil {
			return fmt.Errorf("inserting merged record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing record replacement: %w", err)
	}

	return nil
}
