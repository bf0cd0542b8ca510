package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/karti/auctionhouse/internal/domain"
)

type placeBidRequest struct {
	AuctionID string `json:"auction_id"`
	Amount    int64  `json:"amount"`
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	username := usernameFromContext(r.Context())

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validation("invalid request body"))
		return
	}
	if req.AuctionID == "" || req.Amount <= 0 {
		writeError(w, domain.Validation("auction_id and a positive amount are required"))
		return
	}

	result, err := a.engine.PlaceBid(r.Context(), req.AuctionID, userID, username, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listMyBids is GET /bids: the caller's own bid history joined with a
// denormalized auction snapshot (spec §6 response shape), re-reading live
// state for auctions still live.
func (a *API) listMyBids(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	bids, err := a.store.ListBidsByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(bids))
	for _, b := range bids {
		auc, err := a.store.GetAuction(r.Context(), b.AuctionID)
		if err != nil {
			continue
		}
		entry := map[string]interface{}{
			"bid_id":     b.ID,
			"auction_id": b.AuctionID,
			"title":      auc.Title,
			"image_url":  auc.ImageURL,
			"amount":     b.Amount,
			"created_at": time.UnixMilli(b.TimestampMS).UTC(),
			"status":     auc.Status,
		}
		if auc.Status == domain.AuctionLive {
			if state, err := a.sss.GetLiveState(r.Context(), b.AuctionID); err == nil {
				remaining := state.EndTimeMS - time.Now().UnixMilli()
				if remaining < 0 {
					remaining = 0
				}
				count, _ := a.sss.ParticipantCount(r.Context(), b.AuctionID)
				entry["current_high_bid"] = state.CurrentHighBid
				entry["time_remaining_seconds"] = remaining / 1000
				entry["participant_count"] = count
			}
		} else {
			entry["current_high_bid"] = auc.WinningBid
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}
