package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/karti/auctionhouse/internal/domain"
)

// MarkNotificationSent records an (auction_id, recipient_user_id, kind)
// triple in the notifications ledger so the settlement sink's at-least-once
// queue consumer can dedup redelivered "auction closed" messages before
// dispatching another winner/loser notification (spec §4.5, original system's notifications
// Lambda idempotency key).
func (s *Store) MarkNotificationSent(ctx context.Context, auctionID, recipientUserID, kind string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		INSERT INTO notifications_sent (auction_id, recipient_user_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (auction_id, recipient_user_id, kind) DO NOTHING`,
		auctionID, recipientUserID, kind,
	)
	if err != nil {
		return false, domain.Internal("record notification", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnqueueOutboxEvent writes a transactional-outbox row in the same
// transaction as a durable state change, so the queue publisher can poll and
// publish without ever losing an event to a post-commit crash (grounded on
// the floroz-gavel AuctionService.PlaceBid outbox insert).
func (s *Store) EnqueueOutboxEvent(ctx context.Context, tx Execer, auctionID, kind string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO settlement_outbox (auction_id, kind, payload)
		VALUES ($1, $2, $3::jsonb)`,
		auctionID, kind, string(payload),
	)
	return err
}

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// EnqueueOutboxEvent run either standalone or inside a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// OutboxEvent is one unpublished row from settlement_outbox.
type OutboxEvent struct {
	ID        int64
	AuctionID string
	Kind      string
	Payload   []byte
}

// ListUnpublishedOutbox polls for outbox rows not yet marked published,
// oldest first, for the queue publisher's background loop.
func (s *Store) ListUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, auction_id, kind, payload
		FROM settlement_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, domain.Internal("list outbox", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AuctionID, &e.Kind, &e.Payload); err != nil {
			return nil, domain.Internal("scan outbox row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE settlement_outbox SET published_at = NOW() WHERE id = $1`, id)
	return err
}
