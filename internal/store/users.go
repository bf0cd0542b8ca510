package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/karti/auctionhouse/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u domain.User, passwordHash string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO users (id, email, username, name, phone, password_hash, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Username, u.Name, u.Phone, passwordHash, u.IsVerified,
	)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, string, error) {
	var u domain.User
	var hash string
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, username, name, phone, is_verified, password_hash
		FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.Phone, &u.IsVerified, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, "", domain.NotFound("user not found")
	}
	if err != nil {
		return domain.User{}, "", domain.Internal("load user", err)
	}
	return u, hash, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, username, name, phone, is_verified
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.Phone, &u.IsVerified)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.NotFound("user not found")
	}
	if err != nil {
		return domain.User{}, domain.Internal("load user", err)
	}
	return u, nil
}

// BackfillHostID fixes up auctions whose host_user_id was never stamped, a
// migration hazard the original system's tooling handled with a one-off
// script; kept here as an idempotent helper rather than a one-shot script.
func (s *Store) BackfillHostID(ctx context.Context, auctionID, hostUserID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE auctions SET host_user_id = $1
		WHERE id = $2 AND host_user_id IS NULL`,
		hostUserID, auctionID,
	)
	return err
}
