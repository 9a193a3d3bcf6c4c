package repository

import (
	"context"
	"database/sql"
	"errors"
)

// DirectoryRepositoryInterface is the owner-wide lead directory used for
// dedup. Emails are expected to be normalized by the caller.
type DirectoryRepositoryInterface interface {
	Exists(ctx context.Context, owner, email string) (bool, error)
	// InsertIfNotExists reports whether a new row was written.
	InsertIfNotExists(ctx context.Context, owner, email, leadID, source string) (bool, error)
	// Release drops the row only while it still points at leadID.
	Release(ctx context.Context, owner, email, leadID string) error
}

type DirectoryRepository struct {
	DB *sql.DB
}

func (r *DirectoryRepository) Exists(ctx context.Context, owner, email string) (bool, error) {
	query := `SELECT 1 FROM lead_directory WHERE owner=$1 AND email=$2 LIMIT 1`
	var tmp int
	err := r.DB.QueryRowContext(ctx, query, owner, email).Scan(&tmp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *DirectoryRepository) InsertIfNotExists(ctx context.Context, owner, email, leadID, source string) (bool, error) {
	query := `
        INSERT INTO lead_directory (owner, email, lead_id, source, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (owner, email) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query, owner, email, leadID, source)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *DirectoryRepository) Release(ctx context.Context, owner, email, leadID string) error {
	query := `DELETE FROM lead_directory WHERE owner=$1 AND email=$2 AND lead_id=$3`
	_, err := r.DB.ExecContext(ctx, query, owner, email, leadID)
	return err
}

var _ DirectoryRepositoryInterface = (*DirectoryRepository)(nil)
