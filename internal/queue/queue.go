// Package queue is the durable transport between the bid engine / close
// procedure and the settlement sink: a RabbitMQ topology (amqp091-go)
// carrying bid-persisted and auction-closed messages at least once. Grounded
// on the dependency the floroz-gavel manifest pulls in for exactly this role
// (transactional-outbox publisher -> durable queue -> consumer); no example
// repo's Go source uses amqp091-go directly, so the exchange/queue topology
// below follows the library's own idiomatic publisher/consumer shape.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName         = "auctionhouse.events"
	bidPersistedRouting  = "bid.persisted"
	auctionClosedRouting = "auction.closed"

	BidPersistedQueue  = "settlement.bid_persisted"
	AuctionClosedQueue = "settlement.auction_closed"
)

// BidPersistedMessage is the durable-persistence request the bid engine
// enqueues after every accepted bid (spec §4.2 step "enqueue for durable
// persistence").
type BidPersistedMessage struct {
	BidID       string `json:"bid_id"`
	AuctionID   string `json:"auction_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Amount      int64  `json:"amount"`
	TimestampMS int64  `json:"timestamp_ms"`
	IsHighest   bool   `json:"is_highest"`
}

// Recipient is enough identity/contact information for the settlement sink
// to notify one user without a further DB round trip, mirroring the
// winner/losers recipient shape the original notifications Lambda sends to
// SES (lambda_function.py's process_auction_closed_notification).
type Recipient struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// AuctionClosedMessage is emitted once by the close procedure (run by either
// the timer controller on natural expiry or the manual-close HTTP handler)
// so the settlement sink can finalize winner records and notify every
// participant (spec §4.3/§4.5). There is no host-specific recipient: the
// original system only ever emails the winner and the losers.
type AuctionClosedMessage struct {
	AuctionID  string      `json:"auction_id"`
	Title      string      `json:"title"`
	Winner     *Recipient  `json:"winner,omitempty"`
	WinningBid *int64      `json:"winning_bid,omitempty"`
	Losers     []Recipient `json:"losers,omitempty"`
	EndedAtMS  int64       `json:"ended_at_ms"`
}

// Publisher is the narrow interface the bid engine and timer controller
// depend on, so tests can swap in a fake without a broker.
type Publisher interface {
	PublishBidPersisted(ctx context.Context, msg BidPersistedMessage) error
	PublishAuctionClosed(ctx context.Context, msg AuctionClosedMessage) error
}

// Connection owns the AMQP connection/channel and declares the topology.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Connection{conn: conn, ch: ch}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare exchange: %w", err)
	}
	for _, q := range []struct{ name, routing string }{
		{BidPersistedQueue, bidPersistedRouting},
		{AuctionClosedQueue, auctionClosedRouting},
	} {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue: declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.routing, exchangeName, false, nil); err != nil {
			return fmt.Errorf("queue: bind queue %s: %w", q.name, err)
		}
	}
	return nil
}

func (c *Connection) Close() error {
	c.ch.Close()
	return c.conn.Close()
}

func (c *Connection) publish(ctx context.Context, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (c *Connection) PublishBidPersisted(ctx context.Context, msg BidPersistedMessage) error {
	return c.publish(ctx, bidPersistedRouting, msg)
}

func (c *Connection) PublishAuctionClosed(ctx context.Context, msg AuctionClosedMessage) error {
	return c.publish(ctx, auctionClosedRouting, msg)
}

// Consume returns a delivery channel for the named queue, with manual ack so
// the caller can ack only after the durable write succeeds (at-least-once,
// spec §4.5 idempotent consumer requirement).
func (c *Connection) Consume(ctx context.Context, queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("queue: set qos: %w", err)
	}
	deliveries, err := c.ch.ConsumeWithContext(ctx, queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: consume %s: %w", queueName, err)
	}
	return deliveries, nil
}
