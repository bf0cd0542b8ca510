package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/store"
	"github.com/karti/auctionhouse/internal/timer"
)

type createAuctionRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Duration    int      `json:"duration"`
	Category    string   `json:"category,omitempty"`
	StartingBid int64    `json:"starting_bid"`
	SellerName  string   `json:"seller_name"`
	Condition   string   `json:"condition"`
	ImageURL    string   `json:"image_url,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// createAuction is POST /auctions. The spec's non-goal excludes elaborate
// CRUD plumbing and blob storage itself, but the endpoint's existence and
// shape are part of the required external interface (spec §6).
func (a *API) createAuction(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validation("invalid request body"))
		return
	}
	if req.Title == "" || req.Duration <= 0 || req.StartingBid < 0 || req.SellerName == "" {
		writeError(w, domain.Validation("title, duration, starting_bid, and seller_name are required"))
		return
	}

	auc := domain.Auction{
		ID:              uuid.NewString(),
		HostUserID:      userID,
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		DurationSeconds: req.Duration,
		StartingBid:     req.StartingBid,
		Status:          domain.AuctionLive,
		CreatedAt:       time.Now(),
		SellerName:      req.SellerName,
		Condition:       req.Condition,
		GalleryURLs:     req.Images,
	}
	if req.ImageURL != "" {
		auc.ImageURL = &req.ImageURL
	}

	if err := a.store.CreateAuction(r.Context(), auc); err != nil {
		writeError(w, domain.Internal("create auction", err))
		return
	}

	endTimeMS := auc.CreatedAt.Add(time.Duration(req.Duration) * time.Second).UnixMilli()
	ttl := time.Duration(req.Duration)*time.Second + time.Hour
	if err := a.sss.InitLiveState(r.Context(), auc, endTimeMS, ttl); err != nil {
		a.log.Error().Err(err).Msg("failed to seed live state for new auction")
	}
	// The timer controller is a separate singleton process; it picks this
	// auction up on its next periodic database sync rather than being
	// notified directly here (spec §4.3, matching the original timer
	// manager's startup-load-plus-periodic-sync discovery, no push hook).

	writeJSON(w, http.StatusCreated, auc)
}

func (a *API) listAuctions(w http.ResponseWriter, r *http.Request) {
	status := domain.AuctionStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	auctions, err := a.store.ListAuctions(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if auctions == nil {
		auctions = []domain.Auction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auctions": auctions, "limit": limit, "offset": offset,
	})
}

func (a *API) getAuction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	auc, err := a.store.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"auction": auc}
	if auc.Status == domain.AuctionLive {
		if state, err := a.sss.GetLiveState(r.Context(), id); err == nil {
			top, _ := a.sss.GetTopBids(r.Context(), id)
			count, _ := a.sss.ParticipantCount(r.Context(), id)
			resp["live"] = liveStateView(state, top, count)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	AuctionIDs []string `json:"auction_ids"`
}

func (a *API) batchAuctions(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.AuctionIDs) == 0 {
		writeError(w, domain.Validation("auction_ids is required"))
		return
	}

	auctions, err := a.store.ListAuctionsByIDs(r.Context(), req.AuctionIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	byID := make(map[string]domain.Auction, len(auctions))
	for _, auc := range auctions {
		byID[auc.ID] = auc
	}
	ordered := make([]domain.Auction, 0, len(req.AuctionIDs))
	for _, id := range req.AuctionIDs {
		if auc, ok := byID[id]; ok {
			ordered = append(ordered, auc)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auctions": ordered})
}

func (a *API) getAuctionState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := a.sss.GetLiveState(r.Context(), id)
	if err != nil {
		writeError(w, domain.ErrAuctionNotFound)
		return
	}
	top, _ := a.sss.GetTopBids(r.Context(), id)
	count, _ := a.sss.ParticipantCount(r.Context(), id)
	writeJSON(w, http.StatusOK, liveStateView(state, top, count))
}

// liveStateView renders the public snapshot for both GET /auctions/{id}
// and GET /auctions/{id}/state (spec §6). Leaderboard usernames are masked
// the way the teacher masks bidder identities on public bid history, since
// the leaderboard is cosmetic, not an identity-revealing view.
func liveStateView(state domain.LiveState, topBids []domain.LeaderboardEntry, participantCount int64) map[string]interface{} {
	nowMS := time.Now().UnixMilli()
	remaining := state.EndTimeMS - nowMS
	if remaining < 0 {
		remaining = 0
	}

	top := make([]map[string]interface{}, 0, len(topBids))
	for _, e := range topBids {
		top = append(top, map[string]interface{}{
			"username": store.MaskBidderTag(e.Username),
			"amount":   e.Amount,
		})
	}

	return map[string]interface{}{
		"status":               state.Status,
		"current_high_bid":     state.CurrentHighBid,
		"high_bidder_id":       state.HighBidderID,
		"high_bidder_username": state.HighBidderUsername,
		"participant_count":    participantCount,
		"bid_count":            state.BidCount,
		"time_remaining_ms":    remaining,
		"top_bids":             top,
		"anti_snipe_count":     state.AntiSnipeCount,
	}
}

// closeAuction is the manual-close path (spec §4.3): only the host may
// close a live auction early; the durable close procedure runs the same
// code path the timer controller uses on natural expiry.
func (a *API) closeAuction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID, _ := userIDFromContext(r.Context())

	auc, err := a.store.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if auc.HostUserID != userID {
		writeError(w, domain.Forbidden("only the host can close this auction"))
		return
	}
	if auc.Status != domain.AuctionLive {
		writeError(w, domain.Conflict("auction has already closed"))
		return
	}

	state, _ := a.sss.GetLiveState(r.Context(), id)
	var winnerID *string
	var winningBid *int64
	if state.HighBidderID != "" {
		winnerID = &state.HighBidderID
		winningBid = &state.CurrentHighBid
	}

	// Manual close runs the exact same steps 3-8 as the timer controller's
	// natural-expiry close (spec §4.3 "identical to steps 3-8"): durable
	// close + outbox, SSS status flip, auction_closed event, final timer
	// sync, settlement enqueue with winner/losers, live-state teardown.
	closed, err := timer.RunCloseProcedure(r.Context(), a.store, a.sss, a.queue, a.log, id, winnerID, winningBid)
	if err != nil || !closed {
		writeError(w, domain.Internal("close auction", err))
		return
	}

	resp := map[string]interface{}{"auction_id": id, "status": domain.AuctionClosed}
	if winnerID != nil {
		resp["winner_id"] = *winnerID
		resp["winning_bid"] = *winningBid
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
