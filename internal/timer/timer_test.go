package timer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/sss"
)

type fakePublisher struct {
	closed []queue.AuctionClosedMessage
}

func (f *fakePublisher) PublishBidPersisted(_ context.Context, _ queue.BidPersistedMessage) error {
	return nil
}

func (f *fakePublisher) PublishAuctionClosed(_ context.Context, msg queue.AuctionClosedMessage) error {
	f.closed = append(f.closed, msg)
	return nil
}

var _ queue.Publisher = (*fakePublisher)(nil)

// newTestController builds a Controller with no database, for tests that
// exercise only the SSS-backed tiers of the timer's logic. Anything that
// would fall through to c.db (closing a live auction, DB reconciliation)
// belongs in timer_integration_test.go instead.
func newTestController(t *testing.T) (*Controller, *sss.Store, *fakePublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := sss.NewStore(rdb, sss.NewKeys("auction"))
	pub := &fakePublisher{}
	c := New(s, nil, pub, zerolog.Nop(), time.Second, time.Minute)
	return c, s, pub
}

func seedAuction(t *testing.T, s *sss.Store, auctionID string, endTimeMS int64) {
	t.Helper()
	a := domain.Auction{ID: auctionID, HostUserID: "host-1", StartingBid: 1000, CreatedAt: time.Now()}
	require.NoError(t, s.InitLiveState(context.Background(), a, endTimeMS, time.Hour))
}

func TestResolveEndTime_PrefersDedicatedTTLKey(t *testing.T) {
	c, s, _ := newTestController(t)
	ctx := context.Background()

	endTimeMS := time.Now().Add(time.Hour).UnixMilli()
	seedAuction(t, s, "a1", endTimeMS)

	got, ok, err := c.resolveEndTime(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, endTimeMS, got)
}

func TestProcessAuctionTimer_DoesNotCloseWhileLive(t *testing.T) {
	c, s, pub := newTestController(t)
	ctx := context.Background()

	endTimeMS := time.Now().Add(time.Hour).UnixMilli()
	seedAuction(t, s, "a1", endTimeMS)

	ended, err := c.processAuctionTimer(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ended)
	assert.Empty(t, pub.closed, "a live auction must not enqueue an auction_closed message")
}

