package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/karti/auctionhouse/internal/domain"
)

func (s *Store) CreateAuction(ctx context.Context, a domain.Auction) error {
	gallery := a.GalleryURLs
	if gallery == nil {
		gallery = []string{} // a nil slice is sent as NULL, and gallery_urls is NOT NULL
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO auctions
			(id, host_user_id, title, description, category, duration_seconds,
			 starting_bid, status, created_at, image_url, gallery_urls,
			 seller_name, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.HostUserID, a.Title, a.Description, a.Category, a.DurationSeconds,
		a.StartingBid, a.Status, a.CreatedAt, a.ImageURL, gallery,
		a.SellerName, a.Condition,
	)
	return err
}

func (s *Store) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	a, err := scanAuction(s.Pool.QueryRow(ctx, auctionSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	if err != nil {
		return domain.Auction{}, domain.Internal("load auction", err)
	}
	return a, nil
}

// ListAuctions returns auctions filtered by status, newest first, capped by
// limit/offset — the non-elaborate listing endpoint the spec still requires
// as an external interface even though rich search/browse UX is a non-goal.
func (s *Store) ListAuctions(ctx context.Context, status domain.AuctionStatus, limit, offset int) ([]domain.Auction, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.Pool.Query(ctx, auctionSelect+`
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = s.Pool.Query(ctx, auctionSelect+`
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	}
	if err != nil {
		return nil, domain.Internal("list auctions", err)
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuctionRows(rows)
		if err != nil {
			return nil, domain.Internal("scan auction", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAuctionsByIDs backs the "batch fetch" endpoint (spec §6 POST
// /auctions/batch) so a client holding a page of auction cards can refresh
// all of them in one round trip instead of N.
func (s *Store) ListAuctionsByIDs(ctx context.Context, ids []string) ([]domain.Auction, error) {
	rows, err := s.Pool.Query(ctx, auctionSelect+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Internal("batch load auctions", err)
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuctionRows(rows)
		if err != nil {
			return nil, domain.Internal("scan auction", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CloseAuction is the single-writer close procedure's durable step: flips
// status, records winner/ended_at, and refuses to re-close an already
// closed row so a retried call is a no-op (spec §4.3 "idempotent close").
func (s *Store) CloseAuction(ctx context.Context, id string, endedAt time.Time, winnerID *string, winningBid *int64) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE auctions
		SET status = $1, ended_at = $2, winner_id = $3, winning_bid = $4
		WHERE id = $5 AND status = $6`,
		domain.AuctionClosed, endedAt, winnerID, winningBid, id, domain.AuctionLive,
	)
	if err != nil {
		return false, domain.Internal("close auction", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CloseAuctionWithOutbox runs the same durable transition as CloseAuction but
// stages the settlement-closed message in the settlement_outbox table inside
// the same transaction, so a crash between the two can never leave a closed
// auction with no queued notification (spec §4.3 step 7, transactional
// outbox pattern). Returns the outbox row's ID so the caller can mark it
// published immediately after a successful best-effort live publish.
func (s *Store) CloseAuctionWithOutbox(ctx context.Context, id string, endedAt time.Time, winnerID *string, winningBid *int64, payload []byte) (bool, int64, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, 0, domain.Internal("begin close transaction", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE auctions
		SET status = $1, ended_at = $2, winner_id = $3, winning_bid = $4
		WHERE id = $5 AND status = $6`,
		domain.AuctionClosed, endedAt, winnerID, winningBid, id, domain.AuctionLive,
	)
	if err != nil {
		return false, 0, domain.Internal("close auction", err)
	}
	if tag.RowsAffected() != 1 {
		return false, 0, tx.Commit(ctx)
	}

	var outboxID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO settlement_outbox (auction_id, kind, payload)
		VALUES ($1, 'auction_closed', $2::jsonb)
		RETURNING id`, id, string(payload),
	).Scan(&outboxID); err != nil {
		return false, 0, domain.Internal("enqueue settlement outbox", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, domain.Internal("commit close transaction", err)
	}
	return true, outboxID, nil
}

// ListExpiredLive returns auctions the durable record still shows live whose
// created_at + duration has already passed. The timer controller's
// reconciliation pass does not call it; it lists live auctions through
// ListAuctions.
func (s *Store) ListExpiredLive(ctx context.Context, asOf time.Time) ([]domain.Auction, error) {
	rows, err := s.Pool.Query(ctx, auctionSelect+`
		WHERE status = $1 AND created_at + (duration_seconds || ' seconds')::interval < $2`,
		domain.AuctionLive, asOf,
	)
	if err != nil {
		return nil, domain.Internal("list expired auctions", err)
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuctionRows(rows)
		if err != nil {
			return nil, domain.Internal("scan auction", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const auctionSelect = `
	SELECT id, host_user_id, title, description, category, duration_seconds,
	       starting_bid, status, created_at, ended_at, winner_id, winning_bid,
	       image_url, gallery_urls, seller_name, condition
	FROM auctions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row pgx.Row) (domain.Auction, error) {
	return scanAuctionRow(row)
}

func scanAuctionRows(rows pgx.Rows) (domain.Auction, error) {
	return scanAuctionRow(rows)
}

func scanAuctionRow(r rowScanner) (domain.Auction, error) {
	var a domain.Auction
	err := r.Scan(
		&a.ID, &a.HostUserID, &a.Title, &a.Description, &a.Category, &a.DurationSeconds,
		&a.StartingBid, &a.Status, &a.CreatedAt, &a.EndedAt, &a.WinnerID, &a.WinningBid,
		&a.ImageURL, &a.GalleryURLs, &a.SellerName, &a.Condition,
	)
	return a, err
}
