// Package sss implements the Shared State Store contract (spec §4.1): a
// per-auction hot-state hash, an ordered leaderboard, a participant set, a
// capped chat ring, TTL keys, a scripted atomic conditional-update
// primitive, and a pub/sub bus. Backed by Redis via go-redis/v9, following
// the key layout and Lua-script CAS pattern used by the original system's
// redis_client/client.go and BID_COMPARISON_SCRIPT.
package sss

import (
	"fmt"
	"strings"
)

// Keys mirrors the "persisted live-state layout" recommended in spec §6.
type Keys struct{ prefix string }

func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "auction"
	}
	return Keys{prefix: prefix}
}

func (k Keys) State(auctionID string) string {
	return fmt.Sprintf("%s:%s:state", k.prefix, auctionID)
}

func (k Keys) EndTime(auctionID string) string {
	return fmt.Sprintf("%s:%s:end_time", k.prefix, auctionID)
}

func (k Keys) Active(auctionID string) string {
	return fmt.Sprintf("%s:%s:active", k.prefix, auctionID)
}

func (k Keys) TopBids(auctionID string) string {
	return fmt.Sprintf("%s:%s:top_bids", k.prefix, auctionID)
}

func (k Keys) Users(auctionID string) string {
	return fmt.Sprintf("%s:%s:users", k.prefix, auctionID)
}

func (k Keys) ChatHistory(auctionID string) string {
	return fmt.Sprintf("%s:%s:chat_history", k.prefix, auctionID)
}

func (k Keys) Connection(sessionID string) string {
	return fmt.Sprintf("connection:%s", sessionID)
}

func (k Keys) ChannelEvents(auctionID string) string {
	return fmt.Sprintf("%s:%s:events", k.prefix, auctionID)
}

func (k Keys) ChannelTimer(auctionID string) string {
	return fmt.Sprintf("%s:%s:timer", k.prefix, auctionID)
}

func (k Keys) ChannelChat(auctionID string) string {
	return fmt.Sprintf("%s:%s:chat", k.prefix, auctionID)
}

// EventChannelPattern/TimerChannelPattern/ChatChannelPattern are the
// pattern-subscribe globs the gateway uses to multiplex every auction's
// channels onto one subscriber connection (spec §4.4 "pattern-subscribes to
// three channel families").
func (k Keys) EventChannelPattern() string { return fmt.Sprintf("%s:*:events", k.prefix) }
func (k Keys) TimerChannelPattern() string { return fmt.Sprintf("%s:*:timer", k.prefix) }
func (k Keys) ChatChannelPattern() string  { return fmt.Sprintf("%s:*:chat", k.prefix) }

// AuctionIDFromChannel extracts the auction_id embedded in a channel name
// of the form "{prefix}:{auction_id}:{family}".
func (k Keys) AuctionIDFromChannel(channel string) (string, bool) {
	rest := strings.TrimPrefix(channel, k.prefix+":")
	if rest == channel {
		return "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}
