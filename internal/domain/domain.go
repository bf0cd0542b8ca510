// Package domain holds the core types shared by every component of the
// auction core: auctions, users, bids, and the error taxonomy used to map
// domain failures onto HTTP statuses and realtime error frames.
package domain

import "time"

// AuctionStatus is the lifecycle state of a durable auction record.
type AuctionStatus string

const (
	AuctionLive   AuctionStatus = "live"
	AuctionClosed AuctionStatus = "closed"
)

// Auction is the durable record. Identity is AuctionID.
type Auction struct {
	ID              string        `json:"id"`
	HostUserID      string        `json:"host_user_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	DurationSeconds int           `json:"duration_seconds"`
	StartingBid     int64         `json:"starting_bid"` // fixed-point cents, 2 fractional digits
	Status          AuctionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	WinnerID        *string       `json:"winner_id,omitempty"`
	WinningBid      *int64        `json:"winning_bid,omitempty"`
	ImageURL        *string       `json:"image_url,omitempty"`
	GalleryURLs     []string      `json:"gallery_urls,omitempty"`
	SellerName      string        `json:"seller_name"`
	Condition       string        `json:"condition"`
}

// User is the durable record. Identity equals the external identity
// provider's subject claim.
type User struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Username   string  `json:"username"`
	Name       *string `json:"name,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	IsVerified bool    `json:"is_verified"`
}

// Bid is a durable, append-only record.
type Bid struct {
	ID                string `json:"id"`
	AuctionID         string `json:"auction_id"`
	UserID            string `json:"user_id"`
	UsernameSnapshot  string `json:"username"`
	Amount            int64  `json:"amount"` // cents
	TimestampMS       int64  `json:"timestamp_ms"`
	IsHighestAtCommit bool   `json:"is_highest_at_commit"`
}

// LiveState mirrors the hot per-auction record kept in the SSS. It is a
// read projection used by callers that need the full hash at once (e.g. to
// build a join snapshot); the authoritative copy always lives in the SSS.
type LiveState struct {
	Status             AuctionStatus `json:"status"`
	HostUserID         string        `json:"host_user_id"`
	CurrentHighBid     int64         `json:"current_high_bid"`
	HighBidderID       string        `json:"high_bidder_id"`
	HighBidderUsername string        `json:"high_bidder_username"`
	StartTimeMS        int64         `json:"start_time_ms"`
	EndTimeMS          int64         `json:"end_time_ms"`
	AntiSnipeCount     int           `json:"anti_snipe_count"`
	BidCount           int           `json:"bid_count"`
}

// LeaderboardEntry is one row of the cosmetic top-3 leaderboard.
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

// ChatMessage is one entry in the capped per-auction chat ring. Field names
// match the realtime chat_message frame's wire shape directly (spec §6);
// SenderSessionID travels with the published message so the gateway fan-out
// can skip the sending session (sender-echo suppression).
type ChatMessage struct {
	MessageID       string `json:"message_id"`
	AuctionID       string `json:"auction_id"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	Message         string `json:"message"`
	TimestampMS     int64  `json:"timestamp"`
	SenderSessionID string `json:"sender_session_id,omitempty"`
}
