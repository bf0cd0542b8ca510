package sss

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/karti/auctionhouse/internal/domain"
)

// maxTopBids/maxChatHistory are the caps the spec names for the leaderboard
// and chat ring (§3/§4.1: "top 3", "last 100 messages").
const (
	maxTopBids      = 3
	maxChatHistory  = 100
)

// Store wraps a redis.Client with the per-auction hash/sorted-set/set/list
// operations and the scripted CAS primitive. One Store is shared by every
// component that touches the SSS (bid engine, timer, gateway), mirroring the
// original system's shared redis_client.RedisHelper used across services.
type Store struct {
	rdb  redis.UniversalClient
	keys Keys
}

func NewStore(rdb redis.UniversalClient, keys Keys) *Store {
	return &Store{rdb: rdb, keys: keys}
}

func (s *Store) Keys() Keys { return s.keys }

// InitLiveState seeds the hot-state hash and TTL keys for a freshly created
// auction (spec §4.1 "Auction Created" onboarding into the SSS).
func (s *Store) InitLiveState(ctx context.Context, a domain.Auction, endTimeMS int64, ttl time.Duration) error {
	stateKey := s.keys.State(a.ID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, stateKey, map[string]interface{}{
		"status":               string(domain.AuctionLive),
		"host_user_id":         a.HostUserID,
		"current_high_bid":     a.StartingBid,
		"high_bidder_id":       "",
		"high_bidder_username": "",
		"start_time_ms":        a.CreatedAt.UnixMilli(),
		"end_time_ms":          endTimeMS,
		"anti_snipe_count":     0,
		"bid_count":            0,
	})
	pipe.Expire(ctx, stateKey, ttl)
	pipe.Set(ctx, s.keys.EndTime(a.ID), endTimeMS, ttl)
	pipe.Set(ctx, s.keys.Active(a.ID), "1", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// GetLiveState reads the full hot-state hash in one round trip.
func (s *Store) GetLiveState(ctx context.Context, auctionID string) (domain.LiveState, error) {
	m, err := s.rdb.HGetAll(ctx, s.keys.State(auctionID)).Result()
	if err != nil {
		return domain.LiveState{}, err
	}
	if len(m) == 0 {
		return domain.LiveState{}, redis.Nil
	}
	return domain.LiveState{
		Status:             domain.AuctionStatus(m["status"]),
		HostUserID:         m["host_user_id"],
		CurrentHighBid:     parseInt64(m["current_high_bid"]),
		HighBidderID:       m["high_bidder_id"],
		HighBidderUsername: m["high_bidder_username"],
		StartTimeMS:        parseInt64(m["start_time_ms"]),
		EndTimeMS:          parseInt64(m["end_time_ms"]),
		AntiSnipeCount:     int(parseInt64(m["anti_snipe_count"])),
		BidCount:           int(parseInt64(m["bid_count"])),
	}, nil
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// CommitBid runs the atomic conditional-update script: it only mutates
// current_high_bid/high_bidder_* if amount beats the stored high bid,
// returning false when it was out-raced (spec §4.2 "loser of the race
// observes its own write silently discarded").
func (s *Store) CommitBid(ctx context.Context, auctionID string, amountCents int64, userID, username string, timestampMS int64) (bool, error) {
	res, err := bidCommitScript.Run(ctx, s.rdb, []string{s.keys.State(auctionID)},
		amountCents, userID, username, timestampMS).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ApplyAntiSnipe extends end_time_ms and bumps anti_snipe_count atomically,
// refusing once max extensions has been reached. Returns the extension
// count after this call, or -1 if the cap was already hit.
func (s *Store) ApplyAntiSnipe(ctx context.Context, auctionID string, newEndTimeMS int64, extension time.Duration, maxExtensions int) (int, error) {
	res, err := antiSnipeScript.Run(ctx, s.rdb,
		[]string{s.keys.State(auctionID), s.keys.EndTime(auctionID)},
		extension.Milliseconds(), maxExtensions, newEndTimeMS).Int()
	if err != nil {
		return -1, err
	}
	if res == 0 {
		return -1, nil
	}
	return res, nil
}

// SetStatus transitions the hot-state status field, used by the close
// procedure (spec §4.3) to flip live->closed before tearing down TTLs.
func (s *Store) SetStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	return s.rdb.HSet(ctx, s.keys.State(auctionID), "status", string(status)).Err()
}

// GetEndTimeMS is the first tier of the timer's three-tier fallback: the
// dedicated TTL key, separate from the state hash so it can outlive a
// partial hash eviction.
func (s *Store) GetEndTimeMS(ctx context.Context, auctionID string) (int64, error) {
	v, err := s.rdb.Get(ctx, s.keys.EndTime(auctionID)).Result()
	if err != nil {
		return 0, err
	}
	return parseInt64(v), nil
}

// AddTopBid pushes a candidate into the cosmetic leaderboard sorted set and
// trims it to the top 3 by amount (spec §3 "top 3 leaderboard, amount
// descending"). Entries with equal amounts are ordered by Redis's
// lexicographic member ordering, not by arrival time; this is a cosmetic,
// non-authoritative view.
func (s *Store) AddTopBid(ctx context.Context, auctionID string, entry domain.LeaderboardEntry) error {
	member, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := s.keys.TopBids(auctionID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(entry.Amount), Member: member})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-maxTopBids-1))
	_, err = pipe.Exec(ctx)
	return err
}

// GetTopBids returns the leaderboard, highest first.
func (s *Store) GetTopBids(ctx context.Context, auctionID string) ([]domain.LeaderboardEntry, error) {
	raw, err := s.rdb.ZRevRange(ctx, s.keys.TopBids(auctionID), 0, maxTopBids-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(raw))
	for _, r := range raw {
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(r), &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// AddParticipant/RemoveParticipant/ParticipantCount back the "who's in the
// room" set used for the live participant_count (spec §3 LiveState field).
func (s *Store) AddParticipant(ctx context.Context, auctionID, userID string) error {
	return s.rdb.SAdd(ctx, s.keys.Users(auctionID), userID).Err()
}

func (s *Store) RemoveParticipant(ctx context.Context, auctionID, userID string) error {
	return s.rdb.SRem(ctx, s.keys.Users(auctionID), userID).Err()
}

func (s *Store) ParticipantCount(ctx context.Context, auctionID string) (int64, error) {
	return s.rdb.SCard(ctx, s.keys.Users(auctionID)).Result()
}

// ParticipantUserIDs returns every user ID currently in the room, unordered,
// for the close procedure's per-recipient notification fan-out (spec §4.3
// step 7, §4.5).
func (s *Store) ParticipantUserIDs(ctx context.Context, auctionID string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keys.Users(auctionID)).Result()
}

// PushChatMessage appends to the capped ring (spec §3 "last 100, FIFO
// eviction") via LPUSH+LTRIM, kept atomic with a pipeline.
func (s *Store) PushChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := s.keys.ChatHistory(msg.AuctionID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, maxChatHistory-1)
	_, err = pipe.Exec(ctx)
	return err
}

// ChatHistory returns messages oldest-first.
func (s *Store) ChatHistory(ctx context.Context, auctionID string) ([]domain.ChatMessage, error) {
	raw, err := s.rdb.LRange(ctx, s.keys.ChatHistory(auctionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m domain.ChatMessage
		if err := json.Unmarshal([]byte(raw[i]), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Event is the envelope published on the events/timer/chat channel
// families (spec §4.4). Kind is bid_placed or auction_closed (events),
// anti_snipe or timer_sync (timer), or chat_message (chat). The gateway
// re-reads authoritative state for bid_placed and anti_snipe and forwards
// the other payloads as published.
type Event struct {
	Kind      string          `json:"kind"`
	AuctionID string          `json:"auction_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (s *Store) PublishEvent(ctx context.Context, auctionID, kind string, payload interface{}) error {
	return s.publish(ctx, s.keys.ChannelEvents(auctionID), kind, auctionID, payload)
}

func (s *Store) PublishTimer(ctx context.Context, auctionID, kind string, payload interface{}) error {
	return s.publish(ctx, s.keys.ChannelTimer(auctionID), kind, auctionID, payload)
}

func (s *Store) PublishChat(ctx context.Context, auctionID string, msg domain.ChatMessage) error {
	return s.publish(ctx, s.keys.ChannelChat(auctionID), "chat_message", auctionID, msg)
}

func (s *Store) publish(ctx context.Context, channel, kind, auctionID string, payload interface{}) error {
	p, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Event{Kind: kind, AuctionID: auctionID, Payload: p})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, channel, b).Err()
}

// Subscribe pattern-subscribes to the three channel families in one
// connection, the way the gateway's single pub/sub mux fans events out to
// every connected client (spec §4.4). The returned channel yields decoded
// Events; each Event carries its own AuctionID, and the raw channel name is
// not passed on.
func (s *Store) Subscribe(ctx context.Context) (*redis.PubSub, <-chan Event, error) {
	ps := s.rdb.PSubscribe(ctx,
		s.keys.EventChannelPattern(),
		s.keys.TimerChannelPattern(),
		s.keys.ChatChannelPattern(),
	)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, nil, fmt.Errorf("sss: subscribe: %w", err)
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ps, out, nil
}

// TouchConnection refreshes a per-session heartbeat TTL key (spec §4.5
// session heartbeat/timeout).
func (s *Store) TouchConnection(ctx context.Context, sessionID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.keys.Connection(sessionID), "1", ttl).Err()
}

func (s *Store) ConnectionAlive(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.keys.Connection(sessionID)).Result()
	return n > 0, err
}

// ExpireLiveState sets the state hash's TTL to ttl. Its one caller is the
// bid engine's host_user_id fallback; the bid, anti-snipe and chat paths do
// not refresh the TTL.
func (s *Store) ExpireLiveState(ctx context.Context, auctionID string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, s.keys.State(auctionID), ttl).Err()
}

// TeardownLiveState removes the active marker as the last step of the close
// procedure, right after the closed message is published (spec §4.3 close
// procedure, step "leave a closed snapshot readable until TTL"). The state
// hash and end_time key expire via the TTL set by InitLiveState; the
// top_bids, users and chat_history keys carry no TTL and are left in place.
func (s *Store) TeardownLiveState(ctx context.Context, auctionID string) error {
	return s.rdb.Del(ctx, s.keys.Active(auctionID)).Err()
}
