// Package timer implements the anti-snipe timer controller: a single
// process owns the close decision for every live auction, broadcasting
// periodic time-remaining heartbeats and running the durable close procedure
// exactly once per auction. Ported from the original system's TimerManager
// (timer-service/app/services/timer_manager.py): same three-tier end-time
// fallback, same periodic DB reconciliation, same auction-end notification
// shape, translated from its threading loop into a single goroutine ticker.
package timer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/store"
)

// Controller owns the set of auction IDs it's currently ticking. Only one
// Controller instance may run against a given deployment (spec §4.3
// "single-writer invariant") — nothing here enforces that at runtime beyond
// the idempotent CloseAuctionWithOutbox guard in the store, which makes a second
// writer harmless rather than impossible.
type Controller struct {
	sss   *sss.Store
	db    *store.Store
	queue queue.Publisher
	log   zerolog.Logger

	broadcastInterval time.Duration
	dbSyncInterval    time.Duration

	active map[string]struct{}
}

func New(s *sss.Store, db *store.Store, q queue.Publisher, log zerolog.Logger, broadcastInterval, dbSyncInterval time.Duration) *Controller {
	return &Controller{
		sss: s, db: db, queue: q, log: log,
		broadcastInterval: broadcastInterval,
		dbSyncInterval:    dbSyncInterval,
		active:            make(map[string]struct{}),
	}
}

func (c *Controller) untrack(auctionID string) {
	delete(c.active, auctionID)
}

// Run drives the ticker loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.loadActiveAuctions(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to load active auctions at startup")
	}

	broadcastTicker := time.NewTicker(c.broadcastInterval)
	defer broadcastTicker.Stop()
	dbSyncTicker := time.NewTicker(c.dbSyncInterval)
	defer dbSyncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-broadcastTicker.C:
			c.tick(ctx)
		case <-dbSyncTicker.C:
			c.syncWithDatabase(ctx)
		}
	}
}

func (c *Controller) loadActiveAuctions(ctx context.Context) error {
	auctions, err := c.db.ListAuctions(ctx, domain.AuctionLive, 10000, 0)
	if err != nil {
		return err
	}
	for _, a := range auctions {
		c.active[a.ID] = struct{}{}
	}
	c.log.Info().Int("count", len(c.active)).Msg("loaded active auctions")
	return nil
}

func (c *Controller) tick(ctx context.Context) {
	for auctionID := range c.active {
		ended, err := c.processAuctionTimer(ctx, auctionID)
		if err != nil {
			c.log.Error().Err(err).Str("auction_id", auctionID).Msg("timer processing error")
			continue
		}
		if ended {
			c.untrack(auctionID)
		}
	}
}

// processAuctionTimer resolves end_time via the three-tier fallback, then
// either closes the auction or broadcasts a heartbeat.
func (c *Controller) processAuctionTimer(ctx context.Context, auctionID string) (bool, error) {
	endTimeMS, ok, err := c.resolveEndTime(ctx, auctionID)
	if err != nil {
		return false, err
	}
	if !ok {
		// Auction record is gone or already not live; drop it.
		return true, nil
	}
	if endTimeMS == 0 {
		// Could not calculate end_time this cycle (missing data); retry later.
		return false, nil
	}

	nowMS := time.Now().UnixMilli()
	remaining := endTimeMS - nowMS
	if remaining <= 0 {
		return true, c.handleAuctionEnd(ctx, auctionID)
	}

	c.broadcastTimerUpdate(ctx, auctionID, endTimeMS, remaining)
	return false, nil
}

// resolveEndTime implements the three tiers: dedicated TTL key, then the
// state hash field, then computed from the durable record (with a
// past-value correction if created_at+duration already elapsed).
func (c *Controller) resolveEndTime(ctx context.Context, auctionID string) (int64, bool, error) {
	if ms, err := c.sss.GetEndTimeMS(ctx, auctionID); err == nil && ms > 0 {
		return ms, true, nil
	}

	state, err := c.sss.GetLiveState(ctx, auctionID)
	if err == nil && state.EndTimeMS > 0 {
		return state.EndTimeMS, true, nil
	}

	a, err := c.db.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, false, nil
	}
	if a.Status != domain.AuctionLive {
		return 0, false, nil
	}

	createdAtMS := a.CreatedAt.UnixMilli()
	durationMS := int64(a.DurationSeconds) * 1000
	endTimeMS := createdAtMS + durationMS

	nowMS := time.Now().UnixMilli()
	if endTimeMS <= nowMS {
		c.log.Warn().Str("auction_id", auctionID).Msg("calculated end_time already past; correcting to now+duration")
		endTimeMS = nowMS + durationMS
	}

	ttl := time.Duration(a.DurationSeconds)*time.Second + time.Hour
	_ = c.sss.InitLiveState(ctx, a, endTimeMS, ttl)
	return endTimeMS, true, nil
}

func (c *Controller) broadcastTimerUpdate(ctx context.Context, auctionID string, endTimeMS, remainingMS int64) {
	_ = c.sss.PublishTimer(ctx, auctionID, "timer_sync", map[string]interface{}{
		"server_time":       time.Now().UnixMilli(),
		"auction_end_time":  endTimeMS,
		"time_remaining_ms": remainingMS,
		"sync_type":         "heartbeat",
	})
}

// handleAuctionEnd is the durable close procedure: derive the winner with
// the top-bids safety net, then hand off to the shared steps 3-8 every close
// path (timer expiry or manual host close) must run identically.
func (c *Controller) handleAuctionEnd(ctx context.Context, auctionID string) error {
	state, err := c.sss.GetLiveState(ctx, auctionID)
	if err != nil {
		c.log.Warn().Str("auction_id", auctionID).Msg("no live state found while closing")
	}

	winnerID := state.HighBidderID
	winningBid := state.CurrentHighBid

	// Fallback: derive winner from the leaderboard if the state hash never
	// recorded one (e.g. the hash was evicted mid-auction).
	if winnerID == "" {
		if top, err := c.sss.GetTopBids(ctx, auctionID); err == nil && len(top) > 0 {
			winnerID = top[0].UserID
			winningBid = top[0].Amount
			c.log.Info().Str("auction_id", auctionID).Str("winner_id", winnerID).
				Msg("derived winner from leaderboard safety net")
		}
	}

	var winnerPtr *string
	var winningBidPtr *int64
	if winnerID != "" {
		winnerPtr = &winnerID
		winningBidPtr = &winningBid
	}

	_, err = RunCloseProcedure(ctx, c.db, c.sss, c.queue, c.log, auctionID, winnerPtr, winningBidPtr)
	return err
}

// RunCloseProcedure is the spec §4.3 close procedure's durable steps 3-8: DB
// close + outbox insert (step 3), SSS status flip (step 4), the
// auction_closed event (step 5), the final timer sync frame (step 6), the
// settlement message enqueue (step 7), and live-state teardown (step 8).
// Both the timer controller's natural-expiry path and the manual host-close
// HTTP handler call this so the two close paths can never drift apart.
func RunCloseProcedure(
	ctx context.Context,
	db *store.Store, s *sss.Store, pub queue.Publisher, log zerolog.Logger,
	auctionID string, winnerID *string, winningBid *int64,
) (bool, error) {
	now := time.Now()

	msg, err := buildAuctionClosedMessage(ctx, db, s, auctionID, winnerID, winningBid, now)
	if err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID).Msg("failed to enumerate participants for settlement message")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, domain.Internal("marshal settlement message", err)
	}

	closed, outboxID, err := db.CloseAuctionWithOutbox(ctx, auctionID, now, winnerID, winningBid, payload)
	if err != nil {
		return false, err
	}
	if !closed {
		// Already closed by a prior run; skip re-publishing to avoid
		// double notifications.
		return false, nil
	}

	if err := s.SetStatus(ctx, auctionID, domain.AuctionClosed); err != nil {
		log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to set closed status in SSS")
	}

	winnerUsername := ""
	if msg.Winner != nil {
		winnerUsername = msg.Winner.Username
	}
	_ = s.PublishEvent(ctx, auctionID, "auction_closed", map[string]interface{}{
		"winner_id":       winnerID,
		"winner_username": winnerUsername,
		"winning_bid":     winningBid,
		"ended_at_ms":     now.UnixMilli(),
	})
	_ = s.PublishTimer(ctx, auctionID, "timer_sync", map[string]interface{}{
		"server_time":       now.UnixMilli(),
		"auction_end_time":  now.UnixMilli(),
		"time_remaining_ms": 0,
		"sync_type":         "final",
	})

	// Best-effort immediate publish for low latency; the outbox row just
	// committed above is the durability backstop if this fails or the
	// process dies before it returns (settlement.PublishOutbox drains it).
	if err := pub.PublishAuctionClosed(ctx, msg); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID).Msg("live settlement publish failed, relying on outbox drain")
	} else if err := db.MarkOutboxPublished(ctx, outboxID); err != nil {
		log.Warn().Err(err).Str("auction_id", auctionID).Msg("failed to mark outbox event published after live publish")
	}

	s.TeardownLiveState(ctx, auctionID)
	winnerLog := ""
	if winnerID != nil {
		winnerLog = *winnerID
	}
	log.Info().Str("auction_id", auctionID).Str("winner_id", winnerLog).Msg("auction closed")
	return true, nil
}

// buildAuctionClosedMessage resolves the title, winner, and loser recipients
// needed by the settlement sink (spec §4.3 step 7, §4.5), grounded on the
// original notifications Lambda's winner/losers email payload shape. Losers
// are every current room participant other than the winner; resolution
// failures for an individual user just drop that recipient rather than
// failing the whole close.
func buildAuctionClosedMessage(
	ctx context.Context, db *store.Store, s *sss.Store,
	auctionID string, winnerID *string, winningBid *int64, now time.Time,
) (queue.AuctionClosedMessage, error) {
	msg := queue.AuctionClosedMessage{
		AuctionID:  auctionID,
		WinningBid: winningBid,
		EndedAtMS:  now.UnixMilli(),
	}

	if a, err := db.GetAuction(ctx, auctionID); err == nil {
		msg.Title = a.Title
	}

	if winnerID != nil {
		if r, err := resolveRecipient(ctx, db, *winnerID); err == nil {
			msg.Winner = &r
		}
	}

	participants, err := s.ParticipantUserIDs(ctx, auctionID)
	for _, uid := range participants {
		if winnerID != nil && uid == *winnerID {
			continue
		}
		if r, rerr := resolveRecipient(ctx, db, uid); rerr == nil {
			msg.Losers = append(msg.Losers, r)
		}
	}
	return msg, err
}

func resolveRecipient(ctx context.Context, db *store.Store, userID string) (queue.Recipient, error) {
	u, err := db.GetUserByID(ctx, userID)
	if err != nil {
		return queue.Recipient{}, err
	}
	name := ""
	if u.Name != nil {
		name = *u.Name
	}
	return queue.Recipient{UserID: u.ID, Email: u.Email, Name: name, Username: u.Username}, nil
}

// syncWithDatabase is the periodic reconciliation pass: pick up auctions the
// controller doesn't yet know about, and drop ones the DB no longer
// considers live (spec §4.3 "reconciliation catches drift after a restart").
func (c *Controller) syncWithDatabase(ctx context.Context) {
	auctions, err := c.db.ListAuctions(ctx, domain.AuctionLive, 10000, 0)
	if err != nil {
		c.log.Error().Err(err).Msg("database sync failed")
		return
	}

	live := make(map[string]struct{}, len(auctions))
	for _, a := range auctions {
		live[a.ID] = struct{}{}
		if _, tracked := c.active[a.ID]; !tracked {
			c.active[a.ID] = struct{}{}
			c.log.Info().Str("auction_id", a.ID).Msg("added new auction to timer")
		}
	}

	for id := range c.active {
		if _, stillLive := live[id]; !stillLive {
			delete(c.active, id)
			c.log.Info().Str("auction_id", id).Msg("removed closed auction from timer")
		}
	}
}
