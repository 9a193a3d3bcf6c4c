package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type SenderRepositoryInterface interface {
	Register(ctx context.Context, id *model.SenderIdentity) error
	ListByOwner(ctx context.Context, owner string) ([]model.SenderIdentity, error)
}

type SenderRepository struct {
	DB *sql.DB
}

// Register adds or updates an owner's sender identity, keyed by email.
func (r *SenderRepository) Register(ctx context.Context, s *model.SenderIdentity) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	query := `
        INSERT INTO sender_identities (id, owner, email, verified)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (owner, email) DO UPDATE SET verified=EXCLUDED.verified
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query, s.ID, s.Owner, s.Email, s.Verified).Scan(&s.ID)
}

func (r *SenderRepository) ListByOwner(ctx context.Context, owner string) ([]model.SenderIdentity, error) {
	query := `SELECT id, owner, email, verified FROM sender_identities WHERE owner=$1 ORDER BY email`
	rows, err := r.DB.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := []model.SenderIdentity{}
	for rows.Next() {
		var s model.SenderIdentity
		if err := rows.Scan(&s.ID, &s.Owner, &s.Email, &s.Verified); err != nil {
			return nil, err
		}
		identities = append(identities, s)
	}
	return identities, rows.Err()
}

var _ SenderRepositoryInterface = (*SenderRepository)(nil)
