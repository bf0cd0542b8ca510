// Package bidengine implements the bid admission pipeline: precondition
// checks against hot state, the atomic CAS commit, anti-snipe extension, and
// fan-out publication. Ported from the original system's BidService.process_bid
// (bid-processing-service/app/services/bid_service.py), replacing its SQS
// enqueue with a queue.Publisher that feeds the durable queue, backed by the
// transactional outbox.
package bidengine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/store"
)

// Engine wires the SSS hot path together with the durable store and the
// outbound queue publisher.
type Engine struct {
	sss   *sss.Store
	db    *store.Store
	queue queue.Publisher

	minIncrement       int64
	antiSnipeThreshold time.Duration
	antiSnipeExtension time.Duration
	maxExtensions      int
}

func New(s *sss.Store, db *store.Store, q queue.Publisher, minIncrement int64, threshold, extension time.Duration, maxExtensions int) *Engine {
	return &Engine{
		sss: s, db: db, queue: q,
		minIncrement: minIncrement, antiSnipeThreshold: threshold,
		antiSnipeExtension: extension, maxExtensions: maxExtensions,
	}
}

// PlaceBidResult mirrors process_bid's returned dict shape.
type PlaceBidResult struct {
	Status             string `json:"status"` // "success" | "outbid"
	IsHighest          bool   `json:"is_highest"`
	CurrentHighBid     int64  `json:"current_high_bid"`
	YourBid            int64  `json:"your_bid"`
	Message            string `json:"message"`
	AntiSnipeTriggered bool   `json:"anti_snipe_triggered"`
}

// PlaceBid runs the full admission pipeline for one bid attempt.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, userID, username string, amountCents int64) (PlaceBidResult, error) {
	state, err := e.sss.GetLiveState(ctx, auctionID)
	if err != nil {
		return PlaceBidResult{}, domain.ErrAuctionNotFound
	}

	// precondition 1: auction must be live.
	if state.Status != domain.AuctionLive {
		return PlaceBidResult{}, domain.ErrAuctionClosed
	}

	// precondition 2: host cannot bid on their own auction. When the hot
	// state has no host_user_id, the durable record's host is used for this
	// check; it is not written into the hot-state hash, so every such bid
	// reads the durable record again.
	hostUserID := state.HostUserID
	if hostUserID == "" {
		if a, err := e.db.GetAuction(ctx, auctionID); err == nil && a.HostUserID != "" {
			hostUserID = a.HostUserID
			_ = e.sss.ExpireLiveState(ctx, auctionID, time.Hour)
			_ = e.db.BackfillHostID(ctx, auctionID, hostUserID)
		}
	}
	if hostUserID != "" && hostUserID == userID {
		return PlaceBidResult{}, domain.ErrHostCannotBid
	}

	// precondition 3: time-based close check, independent of status field
	// in case the timer controller hasn't yet run its close procedure.
	endTimeMS, err := e.sss.GetEndTimeMS(ctx, auctionID)
	if err != nil {
		endTimeMS = state.EndTimeMS
	}
	nowMS := time.Now().UnixMilli()
	timeRemaining := endTimeMS - nowMS
	if timeRemaining <= 0 {
		return PlaceBidResult{}, domain.ErrAuctionClosed
	}

	// precondition 4: minimum increment.
	minBid := state.CurrentHighBid + e.minIncrement
	if amountCents < minBid {
		return PlaceBidResult{}, domain.Validation("bid does not meet minimum increment")
	}

	timestampMS := nowMS
	won, err := e.sss.CommitBid(ctx, auctionID, amountCents, userID, username, timestampMS)
	if err != nil {
		return PlaceBidResult{}, domain.Transient("bid commit failed", err)
	}

	if !won {
		return PlaceBidResult{
			Status:         "outbid",
			IsHighest:      false,
			CurrentHighBid: state.CurrentHighBid,
			YourBid:        amountCents,
			Message:        "your bid was outbid",
		}, nil
	}

	_ = e.sss.AddTopBid(ctx, auctionID, domain.LeaderboardEntry{
		UserID: userID, Username: username, Amount: amountCents,
	})

	antiSnipeTriggered := false
	if timeRemaining < e.antiSnipeThreshold.Milliseconds() {
		antiSnipeTriggered = e.handleAntiSnipe(ctx, auctionID, endTimeMS)
	}

	e.publishBidEvent(ctx, auctionID, userID, username, amountCents, timestampMS, antiSnipeTriggered)
	e.enqueueBidForPersistence(ctx, auctionID, userID, username, amountCents, timestampMS)

	return PlaceBidResult{
		Status:             "success",
		IsHighest:          true,
		CurrentHighBid:     amountCents,
		YourBid:            amountCents,
		Message:            "bid placed successfully",
		AntiSnipeTriggered: antiSnipeTriggered,
	}, nil
}

// handleAntiSnipe extends the close deadline when a bid lands inside the
// snipe window, capped by max extensions (spec §4.2 anti-snipe rule).
func (e *Engine) handleAntiSnipe(ctx context.Context, auctionID string, currentEndTimeMS int64) bool {
	newEndTimeMS := currentEndTimeMS + e.antiSnipeExtension.Milliseconds()
	count, err := e.sss.ApplyAntiSnipe(ctx, auctionID, newEndTimeMS, e.antiSnipeExtension, e.maxExtensions)
	if err != nil || count < 0 {
		return false
	}

	_ = e.sss.PublishTimer(ctx, auctionID, "anti_snipe", map[string]interface{}{
		"new_end_time":    newEndTimeMS,
		"extended_by_ms":  e.antiSnipeExtension.Milliseconds(),
		"extension_count": count,
		"max_extensions":  e.maxExtensions,
		"reason":          "last-minute bid received",
	})
	return true
}

func (e *Engine) publishBidEvent(ctx context.Context, auctionID, userID, username string, amount, timestampMS int64, antiSnipe bool) {
	_ = e.sss.PublishEvent(ctx, auctionID, "bid_placed", map[string]interface{}{
		"user_id":              userID,
		"username":             username,
		"amount":               amount,
		"timestamp_ms":         timestampMS,
		"is_new_high":          true,
		"anti_snipe_triggered": antiSnipe,
	})
}

// enqueueBidForPersistence stages the bid in the transactional outbox first
// so a crash before publishing never loses it, then attempts an immediate
// live publish for low latency (spec: hot-path durability is eventually
// consistent, not transactional with admission). A failed live publish just
// leaves the row for settlement.PublishOutbox's background drain; the
// consumer's ON CONFLICT DO NOTHING insert makes a later duplicate delivery
// harmless either way.
func (e *Engine) enqueueBidForPersistence(ctx context.Context, auctionID, userID, username string, amount, timestampMS int64) {
	msg := queue.BidPersistedMessage{
		BidID:       uuid.NewString(),
		AuctionID:   auctionID,
		UserID:      userID,
		Username:    username,
		Amount:      amount,
		TimestampMS: timestampMS,
		IsHighest:   true,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if e.db != nil {
		// Without an outbox row, the live publish below is the only delivery attempt.
		_ = e.db.EnqueueOutboxEvent(ctx, e.db.Pool, auctionID, "bid_persisted", payload)
	}

	if err := e.queue.PublishBidPersisted(ctx, msg); err != nil {
		_ = err // an outbox row, if staged above, still gets drained and republished
	}
}
