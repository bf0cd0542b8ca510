package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/karti/auctionhouse/internal/queue"
)

// newTestConnection starts a disposable RabbitMQ broker and dials it,
// mirroring storetest.NewStore's postgres container pattern for the queue's
// own durable transport (spec §4.5, amqp091-go topology in queue.go).
func newTestConnection(t *testing.T) *queue.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcrabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine",
		tcrabbitmq.WithAdminUsername("test"),
		tcrabbitmq.WithAdminPassword("test"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	amqpURL, err := ctr.AmqpURL(ctx)
	require.NoError(t, err)

	conn, err := queue.Dial(amqpURL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishBidPersisted_DeliveredToSettlementQueue(t *testing.T) {
	conn := newTestConnection(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deliveries, err := conn.Consume(ctx, queue.BidPersistedQueue, "test-consumer")
	require.NoError(t, err)

	msg := queue.BidPersistedMessage{
		BidID:       "bid-1",
		AuctionID:   "a1",
		UserID:      "u1",
		Username:    "alice",
		Amount:      1500,
		TimestampMS: time.Now().UnixMilli(),
		IsHighest:   true,
	}
	require.NoError(t, conn.PublishBidPersisted(ctx, msg))

	select {
	case d := <-deliveries:
		require.NoError(t, d.Ack(false))
		require.Contains(t, string(d.Body), "bid-1")
	case <-ctx.Done():
		t.Fatal("timed out waiting for bid_persisted delivery")
	}
}

func TestPublishAuctionClosed_DeliveredToSettlementQueue(t *testing.T) {
	conn := newTestConnection(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deliveries, err := conn.Consume(ctx, queue.AuctionClosedQueue, "test-consumer")
	require.NoError(t, err)

	winningBid := int64(2000)
	msg := queue.AuctionClosedMessage{
		AuctionID:  "a1",
		Title:      "lot",
		Winner:     &queue.Recipient{UserID: "u1", Email: "u1@example.com", Username: "alice"},
		WinningBid: &winningBid,
		Losers:     []queue.Recipient{{UserID: "u2", Email: "u2@example.com", Username: "bob"}},
		EndedAtMS:  time.Now().UnixMilli(),
	}
	require.NoError(t, conn.PublishAuctionClosed(ctx, msg))

	select {
	case d := <-deliveries:
		require.NoError(t, d.Ack(false))
		var decoded queue.AuctionClosedMessage
		require.NoError(t, json.Unmarshal(d.Body, &decoded))
		require.Equal(t, msg.AuctionID, decoded.AuctionID)
		require.NotNil(t, decoded.Winner)
		require.Equal(t, "u1", decoded.Winner.UserID)
		require.Len(t, decoded.Losers, 1)
	case <-ctx.Done():
		t.Fatal("timed out waiting for auction_closed delivery")
	}
}
