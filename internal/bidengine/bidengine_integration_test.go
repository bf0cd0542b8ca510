//go:build integration

package bidengine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/sss"
	"github.com/karti/auctionhouse/internal/storetest"
)

// TestPlaceBid_BackfillsHostIDFromDurableRecord covers hot state that
// predates host_user_id being cached in the hash (spec §4.2 host-cannot-bid
// precondition, with the fallback read from Postgres).
func TestPlaceBid_BackfillsHostIDFromDurableRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := sss.NewStore(rdb, sss.NewKeys("auction"))
	db := storetest.NewStore(t)

	a := domain.Auction{
		ID:              uuid.NewString(),
		HostUserID:      "host-1",
		Title:           "lot",
		DurationSeconds: 3600,
		StartingBid:     1000,
		Status:          domain.AuctionLive,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, db.CreateUser(context.Background(), domain.User{ID: "host-1", Email: "host-1@example.com", Username: "host"}, "hash"))
	require.NoError(t, db.CreateAuction(context.Background(), a))

	endTimeMS := time.Now().Add(time.Hour).UnixMilli()
	// Write the hash fields directly, leaving high_bidder/host blank, as if
	// this row predates the host_user_id field being cached in the hash.
	require.NoError(t, s.InitLiveState(context.Background(), domain.Auction{
		ID: a.ID, HostUserID: "", StartingBid: 1000, CreatedAt: a.CreatedAt,
	}, endTimeMS, time.Hour))

	e := New(s, db, &fakePublisher{}, 100, 30*time.Second, 30*time.Second, 3)

	_, err := e.PlaceBid(context.Background(), a.ID, "host-1", "host", 2000)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHostCannotBid, "the backfilled host_user_id must still block the host's own bid")
}
