package store

import (
	"context"

	"github.com/karti/auctionhouse/internal/domain"
)

// InsertBid persists the append-only bid row. Called from the settlement
// sink's queue consumer, not the hot bid-placement path itself — the
// durable write happens asynchronously off the SSS commit (spec §4.2 step
// "enqueue for durable persistence", §C5).
func (s *Store) InsertBid(ctx context.Context, b domain.Bid) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO bids (id, auction_id, user_id, username_snapshot, amount,
		                   timestamp_ms, is_highest_at_commit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (auction_id, timestamp_ms, user_id) DO NOTHING`,
		b.ID, b.AuctionID, b.UserID, b.UsernameSnapshot, b.Amount,
		b.TimestampMS, b.IsHighestAtCommit,
	)
	return err
}

// ListBidHistory returns the most recent bids for an auction, newest first.
// User IDs and usernames are returned as stored; MaskBidderTag is not
// applied here.
func (s *Store) ListBidHistory(ctx context.Context, auctionID string, limit int) ([]domain.Bid, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, auction_id, user_id, username_snapshot, amount, timestamp_ms, is_highest_at_commit
		FROM bids WHERE auction_id = $1
		ORDER BY timestamp_ms DESC LIMIT $2`,
		auctionID, limit,
	)
	if err != nil {
		return nil, domain.Internal("list bid history", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.UsernameSnapshot,
			&b.Amount, &b.TimestampMS, &b.IsHighestAtCommit); err != nil {
			return nil, domain.Internal("scan bid", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListBidsByUser is the caller's own bid history, newest first, backing
// GET /bids (spec §6).
func (s *Store) ListBidsByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Bid, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, auction_id, user_id, username_snapshot, amount, timestamp_ms, is_highest_at_commit
		FROM bids WHERE user_id = $1
		ORDER BY timestamp_ms DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, domain.Internal("list bids by user", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.UsernameSnapshot,
			&b.Amount, &b.TimestampMS, &b.IsHighestAtCommit); err != nil {
			return nil, domain.Internal("scan bid", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MaskBidderTag applies the teacher's bidder-privacy convention: keep the
// first 4 characters of the username, mask the rest.
func MaskBidderTag(username string) string {
	if len(username) <= 4 {
		return username
	}
	return username[:4] + "***"
}
