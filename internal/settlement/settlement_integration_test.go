package settlement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/queue"
	"github.com/karti/auctionhouse/internal/storetest"
)

// fakeAcknowledger records Ack/Nack calls so handleBidPersisted and
// handleAuctionClosed can be exercised without a live broker connection.
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func delivery(t *testing.T, v interface{}) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Body: body, Acknowledger: ack}, ack
}

type fakeNotifier struct {
	winnerCalls []string
	loserCalls  []string
}

func (n *fakeNotifier) NotifyWinner(_ context.Context, auctionID string, recipient queue.Recipient, _ int64) error {
	n.winnerCalls = append(n.winnerCalls, recipient.UserID)
	return nil
}
func (n *fakeNotifier) NotifyLoser(_ context.Context, auctionID string, recipient queue.Recipient, _ int64) error {
	n.loserCalls = append(n.loserCalls, recipient.UserID)
	return nil
}

func TestHandleBidPersisted_AcksOnSuccessAndDedupsRedelivery(t *testing.T) {
	s := storetest.NewStore(t)
	c := New(nil, s, &fakeNotifier{}, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, domain.User{ID: "host-1", Email: "host-1@example.com", Username: "host-1"}, "hash"))
	require.NoError(t, s.CreateUser(ctx, domain.User{ID: "u1", Email: "u1@example.com", Username: "alice"}, "hash"))
	require.NoError(t, s.CreateAuction(ctx, domain.Auction{
		ID: "a1", HostUserID: "host-1", Title: "lot", StartingBid: 1000,
		Status: domain.AuctionLive, CreatedAt: time.Now(), SellerName: "s", Condition: "used",
	}))

	msg := queue.BidPersistedMessage{
		BidID: "bid-1", AuctionID: "a1", UserID: "u1", Username: "alice",
		Amount: 1500, TimestampMS: time.Now().UnixMilli(), IsHighest: true,
	}
	d1, ack1 := delivery(t, msg)
	c.handleBidPersisted(ctx, d1)
	assert.True(t, ack1.acked)

	// Redelivery of the same bid_id must still ack cleanly, not error out.
	d2, ack2 := delivery(t, msg)
	c.handleBidPersisted(ctx, d2)
	assert.True(t, ack2.acked, "duplicate delivery must be acked, not nacked")
}

func TestHandleBidPersisted_NacksWithoutRequeueOnMalformedBody(t *testing.T) {
	s := storetest.NewStore(t)
	c := New(nil, s, &fakeNotifier{}, zerolog.Nop())

	d := amqp.Delivery{Body: []byte("not json"), Acknowledger: &fakeAcknowledger{}}
	ack := d.Acknowledger.(*fakeAcknowledger)
	c.handleBidPersisted(context.Background(), d)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued, "malformed payloads must not be requeued, they'll never parse")
}

func TestHandleAuctionClosed_NotifiesEachRecipientAtMostOnce(t *testing.T) {
	s := storetest.NewStore(t)
	notifier := &fakeNotifier{}
	c := New(nil, s, notifier, zerolog.Nop())
	ctx := context.Background()

	winningBid := int64(5000)
	msg := queue.AuctionClosedMessage{
		AuctionID: "a1", Title: "lot",
		Winner:     &queue.Recipient{UserID: "winner-1", Email: "winner@example.com", Username: "winner"},
		WinningBid: &winningBid,
		Losers: []queue.Recipient{
			{UserID: "loser-1", Email: "loser1@example.com", Username: "loser1"},
			{UserID: "loser-2", Email: "loser2@example.com", Username: "loser2"},
		},
		EndedAtMS: time.Now().UnixMilli(),
	}

	d1, ack1 := delivery(t, msg)
	c.handleAuctionClosed(ctx, d1)
	assert.True(t, ack1.acked)
	assert.Equal(t, []string{"winner-1"}, notifier.winnerCalls)
	assert.ElementsMatch(t, []string{"loser-1", "loser-2"}, notifier.loserCalls)

	// A redelivered auction_closed message must not double-notify any
	// recipient (spec §4.5 dedup tag (auction_id, recipient_user_id)).
	d2, ack2 := delivery(t, msg)
	c.handleAuctionClosed(ctx, d2)
	assert.True(t, ack2.acked)
	assert.Equal(t, []string{"winner-1"}, notifier.winnerCalls, "winner must not be notified twice")
	assert.ElementsMatch(t, []string{"loser-1", "loser-2"}, notifier.loserCalls, "losers must not be notified twice")
}
