package sss

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, NewKeys("auction"))
}

func seedAuction(t *testing.T, s *Store, auctionID string) {
	t.Helper()
	ctx := context.Background()
	a := domain.Auction{
		ID:           auctionID,
		HostUserID:   "host-1",
		StartingBid:  1000,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.InitLiveState(ctx, a, time.Now().Add(time.Hour).UnixMilli(), time.Hour))
}

func TestCommitBid_HigherBidWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuction(t, s, "a1")

	won, err := s.CommitBid(ctx, "a1", 1500, "u1", "alice", time.Now().UnixMilli())
	require.NoError(t, err)
	assert.True(t, won)

	state, err := s.GetLiveState(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), state.CurrentHighBid)
	assert.Equal(t, "u1", state.HighBidderID)
	assert.Equal(t, "alice", state.HighBidderUsername)
	assert.Equal(t, 1, state.BidCount)
}

func TestCommitBid_LowerBidSilentlyDiscarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuction(t, s, "a1")

	won, err := s.CommitBid(ctx, "a1", 2000, "u1", "alice", time.Now().UnixMilli())
	require.NoError(t, err)
	require.True(t, won)

	won, err = s.CommitBid(ctx, "a1", 1500, "u2", "bob", time.Now().UnixMilli())
	require.NoError(t, err)
	assert.False(t, won, "a bid below the stored high bid must lose the race silently")

	state, err := s.GetLiveState(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), state.CurrentHighBid, "losing bid must not mutate state")
	assert.Equal(t, "u1", state.HighBidderID)
	assert.Equal(t, 1, state.BidCount, "a discarded bid must not bump bid_count")
}

func TestCommitBid_EqualBidLoses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuction(t, s, "a1")

	won, err := s.CommitBid(ctx, "a1", 2000, "u1", "alice", time.Now().UnixMilli())
	require.NoError(t, err)
	require.True(t, won)

	won, err = s.CommitBid(ctx, "a1", 2000, "u2", "bob", time.Now().UnixMilli())
	require.NoError(t, err)
	assert.False(t, won, "a tied bid must not beat the incumbent high bid")
}

func TestCommitBid_ConcurrentOnlyOneWinnerPerAmount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuction(t, s, "a1")

	const n = 20
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			won, err := s.CommitBid(ctx, "a1", amount, "u", "name", time.Now().UnixMilli())
			require.NoError(t, err)
			wins <- won
		}(int64(1000 + i*100))
	}
	wg.Wait()
	close(wins)
	winCount := 0
	for won := range wins {
		if won {
			winCount++
		}
	}

	state, err := s.GetLiveState(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000+(n-1)*100), state.CurrentHighBid)
	assert.Equal(t, winCount, state.BidCount, "the atomic script bumps bid_count once per accepted commit and never for a discarded one")
}

func TestApplyAntiSnipe_ExtendsUntilCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAuction(t, s, "a1")

	endTime, err := s.GetEndTimeMS(ctx, "a1")
	require.NoError(t, err)

	count, err := s.ApplyAntiSnipe(ctx, "a1", endTime+30000, 30*time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.ApplyAntiSnipe(ctx, "a1", endTime+60000, 30*time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.ApplyAntiSnipe(ctx, "a1", endTime+90000, 30*time.Second, 2)
	require.NoError(t, err)
	assert.Equal(t, -1, count, "a third extension past max_extensions=2 must be refused")

	newEnd, err := s.GetEndTimeMS(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, endTime+60000, newEnd, "the refused extension must not mutate end_time")

	state, err := s.GetLiveState(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.AntiSnipeCount)
}

func TestAddTopBid_CappedAtThreeHighestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []domain.LeaderboardEntry{
		{UserID: "u1", Username: "a", Amount: 1000},
		{UserID: "u2", Username: "b", Amount: 4000},
		{UserID: "u3", Username: "c", Amount: 2000},
		{UserID: "u4", Username: "d", Amount: 3000},
	}
	for _, e := range entries {
		require.NoError(t, s.AddTopBid(ctx, "a1", e))
	}

	top, err := s.GetTopBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, top, 3, "leaderboard must be capped at 3 entries")
	assert.Equal(t, int64(4000), top[0].Amount)
	assert.Equal(t, int64(3000), top[1].Amount)
	assert.Equal(t, int64(2000), top[2].Amount)
}

func TestPushChatMessage_CappedAndOrderedOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := domain.ChatMessage{
			MessageID:   string(rune('a' + i)),
			AuctionID:   "a1",
			UserID:      "u1",
			Username:    "alice",
			Message:     "hello",
			TimestampMS: int64(i),
		}
		require.NoError(t, s.PushChatMessage(ctx, msg))
	}

	history, err := s.ChatHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, m := range history {
		assert.Equal(t, int64(i), m.TimestampMS, "chat history must read back oldest-first")
	}
}

func TestPushChatMessage_TrimsPastCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < maxChatHistory+10; i++ {
		msg := domain.ChatMessage{AuctionID: "a1", Message: "m", TimestampMS: int64(i)}
		require.NoError(t, s.PushChatMessage(ctx, msg))
	}

	history, err := s.ChatHistory(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, history, maxChatHistory)
	assert.Equal(t, int64(10), history[0].TimestampMS, "the oldest 10 messages must have been evicted")
	assert.Equal(t, int64(maxChatHistory+9), history[len(history)-1].TimestampMS)
}

func TestParticipantTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddParticipant(ctx, "a1", "u1"))
	require.NoError(t, s.AddParticipant(ctx, "a1", "u2"))

	count, err := s.ParticipantCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, s.RemoveParticipant(ctx, "a1", "u1"))
	count, err = s.ParticipantCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ids, err := s.ParticipantUserIDs(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids)
}

func TestPublishEvent_RoundTripsThroughSubscribe(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PublishEvent(ctx, "a1", "bid_placed", map[string]interface{}{"user_id": "u1"}))

	select {
	case ev := <-events:
		assert.Equal(t, "bid_placed", ev.Kind)
		assert.Equal(t, "a1", ev.AuctionID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
