// Package settlement is the durable sink (spec §4.5): an at-least-once
// RabbitMQ consumer that turns bid_persisted/auction_closed messages into
// idempotent Postgres writes. Notification delivery itself is out of scope
// (spec §1 non-goals); the sink still records the dedup ledger the original
// system's notifications Lambda used, so a delivery integration has
// somewhere to plug in without re-deriving who's already been told.
package settlement

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/store"
)

// Notifier is the seam a real delivery integration would implement; the
// sink only guarantees each recipient is notified at most once per kind.
// Grounded on the original notifications Lambda's two outbound email
// templates (winner, loser) — there is no third "host" template.
type Notifier interface {
	NotifyWinner(ctx context.Context, auctionID string, recipient queue.Recipient, winningBid int64) error
	NotifyLoser(ctx context.Context, auctionID string, recipient queue.Recipient, winningBid int64) error
}

// LogNotifier is the default Notifier: it logs intent to deliver instead of
// sending anything, matching the examples pack having no notification
// library for this concern to wire (documented in DESIGN.md).
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) NotifyWinner(_ context.Context, auctionID string, recipient queue.Recipient, winningBid int64) error {
	n.Log.Info().Str("auction_id", auctionID).Str("user_id", recipient.UserID).Str("email", recipient.Email).
		Int64("winning_bid", winningBid).Msg("would notify winner")
	return nil
}

func (n LogNotifier) NotifyLoser(_ context.Context, auctionID string, recipient queue.Recipient, winningBid int64) error {
	n.Log.Info().Str("auction_id", auctionID).Str("user_id", recipient.UserID).Str("email", recipient.Email).
		Int64("winning_bid", winningBid).Msg("would notify loser")
	return nil
}

// Consumer drains both durable queues and applies each message idempotently.
type Consumer struct {
	conn     *queue.Connection
	store    *store.Store
	notifier Notifier
	log      zerolog.Logger
}

func New(conn *queue.Connection, s *store.Store, notifier Notifier, log zerolog.Logger) *Consumer {
	return &Consumer{conn: conn, store: s, notifier: notifier, log: log}
}

// Run consumes both queues concurrently until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	bidDeliveries, err := c.conn.Consume(ctx, queue.BidPersistedQueue, "settlement-bids")
	if err != nil {
		return err
	}
	closedDeliveries, err := c.conn.Consume(ctx, queue.AuctionClosedQueue, "settlement-closed")
	if err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() { errs <- c.drainBidPersisted(ctx, bidDeliveries) }()
	go func() { errs <- c.drainAuctionClosed(ctx, closedDeliveries) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		return err
	}
}

func (c *Consumer) drainBidPersisted(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleBidPersisted(ctx, d)
		}
	}
}

func (c *Consumer) handleBidPersisted(ctx context.Context, d amqp.Delivery) {
	var msg queue.BidPersistedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Error().Err(err).Msg("malformed bid_persisted message, dropping")
		d.Nack(false, false)
		return
	}

	bid := domain.Bid{
		ID:                msg.BidID,
		AuctionID:         msg.AuctionID,
		UserID:            msg.UserID,
		UsernameSnapshot:  msg.Username,
		Amount:            msg.Amount,
		TimestampMS:       msg.TimestampMS,
		IsHighestAtCommit: msg.IsHighest,
	}

	// ON CONFLICT DO NOTHING makes redelivery a no-op (spec §4.5 "at least
	// once, consumer idempotent").
	if err := c.store.InsertBid(ctx, bid); err != nil {
		c.log.Error().Err(err).Str("bid_id", bid.ID).Msg("failed to persist bid, will redeliver")
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func (c *Consumer) drainAuctionClosed(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleAuctionClosed(ctx, d)
		}
	}
}

func (c *Consumer) handleAuctionClosed(ctx context.Context, d amqp.Delivery) {
	var msg queue.AuctionClosedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Error().Err(err).Msg("malformed auction_closed message, dropping")
		d.Nack(false, false)
		return
	}

	winningBid := int64(0)
	if msg.WinningBid != nil {
		winningBid = *msg.WinningBid
	}

	if msg.Winner != nil {
		sent, err := c.store.MarkNotificationSent(ctx, msg.AuctionID, msg.Winner.UserID, "winner")
		if err != nil {
			c.log.Error().Err(err).Str("auction_id", msg.AuctionID).Msg("failed to record winner notification, will redeliver")
			d.Nack(false, true)
			return
		}
		if sent {
			if err := c.notifier.NotifyWinner(ctx, msg.AuctionID, *msg.Winner, winningBid); err != nil {
				c.log.Warn().Err(err).Msg("winner notification delivery failed")
			}
		}
	}

	// Every other participant is a loser by elimination; notify each one
	// independently so one bad address never blocks the rest (spec §4.3 step
	// 7, original notifications Lambda's per-recipient SES send loop).
	for _, loser := range msg.Losers {
		sent, err := c.store.MarkNotificationSent(ctx, msg.AuctionID, loser.UserID, "loser")
		if err != nil {
			c.log.Error().Err(err).Str("auction_id", msg.AuctionID).Str("user_id", loser.UserID).
				Msg("failed to record loser notification, will redeliver")
			d.Nack(false, true)
			return
		}
		if sent {
			if err := c.notifier.NotifyLoser(ctx, msg.AuctionID, loser, winningBid); err != nil {
				c.log.Warn().Err(err).Str("user_id", loser.UserID).Msg("loser notification delivery failed")
			}
		}
	}

	d.Ack(false)
}

// PublishOutbox is the background loop pairing with store.EnqueueOutboxEvent:
// it polls unpublished rows and republishes them, covering the case where a
// process crashed after committing the DB write but before the queue publish
// (transactional outbox, grounded on the floroz-gavel AuctionService pattern).
func PublishOutbox(ctx context.Context, s *store.Store, pub queue.Publisher, interval time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			drainOutboxOnce(ctx, s, pub, log)
		}
	}
}

func drainOutboxOnce(ctx context.Context, s *store.Store, pub queue.Publisher, log zerolog.Logger) {
	events, err := s.ListUnpublishedOutbox(ctx, 100)
	if err != nil {
		log.Error().Err(err).Msg("failed to list outbox events")
		return
	}
	for _, e := range events {
		if err := republish(ctx, pub, e); err != nil {
			log.Error().Err(err).Int64("outbox_id", e.ID).Msg("failed to republish outbox event")
			continue
		}
		if err := s.MarkOutboxPublished(ctx, e.ID); err != nil {
			log.Error().Err(err).Int64("outbox_id", e.ID).Msg("failed to mark outbox event published")
		}
	}
}

func republish(ctx context.Context, pub queue.Publisher, e store.OutboxEvent) error {
	switch e.Kind {
	case "bid_persisted":
		var msg queue.BidPersistedMessage
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			return err
		}
		return pub.PublishBidPersisted(ctx, msg)
	case "auction_closed":
		var msg queue.AuctionClosedMessage
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			return err
		}
		return pub.PublishAuctionClosed(ctx, msg)
	default:
		return nil
	}
}
