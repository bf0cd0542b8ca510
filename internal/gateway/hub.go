// Package gateway is the realtime WebSocket boundary (spec §4.4): a Hub that
// tracks per-session connections and per-auction rooms, and fans out SSS
// pub/sub events to connected clients, re-reading authoritative state for
// bid and anti-snipe hints rather than trusting the pub/sub payload as the
// wire truth. Connection bookkeeping (register/unregister channels, read/write
// pumps, per-client send buffers) is carried over from the teacher's
// hub/hub.go; room membership follows the original system's
// connection_handler.py join_auction/leave_auction protocol instead of the
// teacher's connect-time-only room assignment, and chat persistence moves
// from Postgres to the SSS capped ring.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/karti/auctionhouse/internal/domain"
	"github.com/karti/auctionhouse/internal/sss"
)

// Frame is the generic WebSocket message envelope, client- and
// server-bound alike (spec §6 realtime channel).
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client → Server frame types.
const (
	InJoinAuction  = "join_auction"
	InLeaveAuction = "leave_auction"
	InChatMessage  = "chat_message"
	InPing         = "ping"
)

// Server → Client frame types.
const (
	OutConnected     = "connected"
	OutJoinedAuction = "joined_auction"
	OutLeftAuction   = "left_auction"
	OutUserJoined    = "user_joined"
	OutUserLeft      = "user_left"
	OutBidUpdate     = "bid_update"
	OutTimerUpdate   = "timer_update"
	OutAuctionEnded  = "auction_ended"
	OutChatMessage   = "chat_message"
	OutPong          = "pong"
	OutError         = "error"
)

// Client is a single connected WebSocket session. AuctionID is the room it
// currently watches, empty until a join_auction frame arrives; a session may
// switch rooms by leaving and joining again.
type Client struct {
	SessionID string
	UserID    string
	Username  string

	mu        sync.RWMutex
	auctionID string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

func (c *Client) AuctionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auctionID
}

// Hub manages connections and auction rooms, and drives the SSS pub/sub
// mux that fans events out to every room.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	store *sss.Store
	log   zerolog.Logger

	register   chan *Client
	unregister chan *Client

	heartbeat time.Duration
	timeout   time.Duration
}

func NewHub(store *sss.Store, log zerolog.Logger, heartbeat, timeout time.Duration) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		store:      store,
		log:        log,
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		heartbeat:  heartbeat,
		timeout:    timeout,
	}
}

// Run drives both the register/unregister loop and the SSS pub/sub mux
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ps, events, err := h.store.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer ps.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			c.sendFrame(OutConnected, map[string]string{"user_id": c.UserID, "username": c.Username})
		case c := <-h.unregister:
			h.leaveCurrentRoom(c)
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			h.handleEvent(ctx, ev)
		}
	}
}

// joinAuction moves c into auctionID's room, sending it a full snapshot and
// notifying the rest of the room (spec §4.4 session lifecycle / room
// membership, grounded on connection_handler.py's on_join_auction).
func (h *Hub) joinAuction(ctx context.Context, c *Client, auctionID string) {
	h.leaveCurrentRoom(c)

	h.mu.Lock()
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[*Client]struct{})
	}
	h.rooms[auctionID][c] = struct{}{}
	h.mu.Unlock()

	c.mu.Lock()
	c.auctionID = auctionID
	c.mu.Unlock()

	_ = h.store.AddParticipant(ctx, auctionID, c.UserID)
	count, _ := h.store.ParticipantCount(ctx, auctionID)

	c.sendFrame(OutJoinedAuction, h.snapshotForUser(ctx, auctionID, c.UserID))
	h.broadcastExcept(auctionID, c.SessionID, OutUserJoined, map[string]interface{}{
		"user_id": c.UserID, "username": c.Username, "participant_count": count,
	})
}

// leaveCurrentRoom removes c from whatever room it's in, if any.
func (h *Hub) leaveCurrentRoom(c *Client) {
	auctionID := c.AuctionID()
	if auctionID == "" {
		return
	}

	h.mu.Lock()
	if room, ok := h.rooms[auctionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	c.auctionID = ""
	c.mu.Unlock()

	ctx := context.Background()
	_ = h.store.RemoveParticipant(ctx, auctionID, c.UserID)
	count, _ := h.store.ParticipantCount(ctx, auctionID)
	h.broadcast(auctionID, OutUserLeft, map[string]interface{}{
		"user_id": c.UserID, "username": c.Username, "participant_count": count,
	})
}

// snapshotForUser builds the joined_auction payload: current state, top
// bids, chat history, and whether this user currently holds the high bid.
func (h *Hub) snapshotForUser(ctx context.Context, auctionID, userID string) map[string]interface{} {
	state, _ := h.store.GetLiveState(ctx, auctionID)
	top, _ := h.store.GetTopBids(ctx, auctionID)
	chat, _ := h.store.ChatHistory(ctx, auctionID)
	count, _ := h.store.ParticipantCount(ctx, auctionID)

	// The stored ring holds up to 100 messages (spec §3); the join snapshot
	// only sends the most recent 50 (spec §4.4 step 4).
	if len(chat) > maxSnapshotChatMessages {
		chat = chat[len(chat)-maxSnapshotChatMessages:]
	}

	return map[string]interface{}{
		"auction_id":           auctionID,
		"status":               state.Status,
		"current_high_bid":     state.CurrentHighBid,
		"high_bidder_id":       state.HighBidderID,
		"high_bidder_username": state.HighBidderUsername,
		"participant_count":    count,
		"bid_count":            state.BidCount,
		"top_bids":             top,
		"you_are_winning":      state.HighBidderID == userID,
		"chat_messages":        chat,
	}
}

// handleEvent fans an event out to its auction's room. For bid_placed and
// anti_snipe it re-reads authoritative state and builds a fresh frame
// (spec §4.4: "the payload is a hint, never trusted directly");
// auction_closed, timer_sync and chat_message payloads are forwarded as
// published.
func (h *Hub) handleEvent(ctx context.Context, ev sss.Event) {
	switch ev.Kind {
	case "bid_placed":
		state, err := h.store.GetLiveState(ctx, ev.AuctionID)
		if err != nil {
			h.log.Warn().Err(err).Str("auction_id", ev.AuctionID).Msg("failed to re-read state for fan-out")
			return
		}
		top, _ := h.store.GetTopBids(ctx, ev.AuctionID)
		count, _ := h.store.ParticipantCount(ctx, ev.AuctionID)
		h.broadcast(ev.AuctionID, OutBidUpdate, map[string]interface{}{
			"high_bid":             state.CurrentHighBid,
			"high_bidder_username": state.HighBidderUsername,
			"top_bids":             top,
			"bid_count":            state.BidCount,
			"participant_count":    count,
		})
	case "anti_snipe":
		// The end-time moved; re-read it rather than trusting the hint so a
		// client that missed earlier frames still resyncs correctly.
		endTimeMS, err := h.store.GetEndTimeMS(ctx, ev.AuctionID)
		if err != nil {
			h.log.Warn().Err(err).Str("auction_id", ev.AuctionID).Msg("failed to re-read end time for anti-snipe fan-out")
			return
		}
		nowMS := time.Now().UnixMilli()
		remaining := endTimeMS - nowMS
		if remaining < 0 {
			remaining = 0
		}
		h.broadcast(ev.AuctionID, OutTimerUpdate, map[string]interface{}{
			"server_time":       nowMS,
			"auction_end_time":  endTimeMS,
			"time_remaining_ms": remaining,
			"sync_type":         "anti_snipe",
		})
	case "auction_closed":
		h.broadcast(ev.AuctionID, OutAuctionEnded, ev.Payload)
	case "timer_sync":
		h.broadcast(ev.AuctionID, OutTimerUpdate, ev.Payload)
	case "chat_message":
		var msg domain.ChatMessage
		_ = json.Unmarshal(ev.Payload, &msg)
		h.broadcastExcept(ev.AuctionID, msg.SenderSessionID, OutChatMessage, ev.Payload)
	}
}

func (h *Hub) broadcast(auctionID, frameType string, payload interface{}) {
	h.broadcastExcept(auctionID, "", frameType, payload)
}

// broadcastExcept fans a frame out to every client in the room except the
// one identified by excludeSessionID (used for sender-echo-suppression on
// chat, and to avoid a redundant self-notification on join/leave).
func (h *Hub) broadcastExcept(auctionID, excludeSessionID, frameType string, payload interface{}) {
	data, err := marshalFrame(frameType, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal frame")
		return
	}
	h.mu.RLock()
	room := h.rooms[auctionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		if c.SessionID != excludeSessionID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("session_id", c.SessionID).Msg("dropped frame for slow client")
		}
	}
}

func marshalFrame(frameType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	switch v := payload.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}

func (c *Client) sendFrame(frameType string, payload interface{}) {
	data, err := marshalFrame(frameType, payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// NewClient registers a fresh connection and starts its read/write pumps.
// It does not join any room until the client sends join_auction.
func (h *Hub) NewClient(userID, username string, conn *websocket.Conn) *Client {
	c := &Client{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Username:  username,
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       h,
	}
	h.register <- c
	go c.writePump(h.heartbeat)
	go c.readPump()
	return c
}

func (c *Client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			_ = c.hub.store.TouchConnection(context.Background(), c.SessionID, c.hub.timeout)
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	_ = c.hub.store.TouchConnection(context.Background(), c.SessionID, c.hub.timeout)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendFrame(OutError, map[string]string{"message": "malformed frame"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch frame.Type {
		case InJoinAuction:
			c.handleJoin(ctx, frame.Payload)
		case InLeaveAuction:
			leftID := c.AuctionID()
			c.hub.leaveCurrentRoom(c)
			c.sendFrame(OutLeftAuction, map[string]string{"auction_id": leftID})
		case InChatMessage:
			c.handleChatSend(ctx, frame.Payload)
		case InPing:
			c.sendFrame(OutPong, map[string]int64{"timestamp": time.Now().UnixMilli()})
		default:
			c.sendFrame(OutError, map[string]string{"message": "unknown frame type"})
		}
		cancel()
	}
}

func (c *Client) handleJoin(ctx context.Context, payload json.RawMessage) {
	var body struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.AuctionID == "" {
		c.sendFrame(OutError, map[string]string{"message": "missing auction_id"})
		return
	}
	c.hub.joinAuction(ctx, c, body.AuctionID)
}

// maxChatMessageLength bounds chat_message text (spec §4.4: "reject if
// empty or >500 chars").
const maxChatMessageLength = 500

// maxSnapshotChatMessages bounds the chat backlog sent in a joined_auction
// snapshot (spec §4.4 step 4), separate from the ring's own 100-message cap.
const maxSnapshotChatMessages = 50

func (c *Client) handleChatSend(ctx context.Context, payload json.RawMessage) {
	var body struct {
		AuctionID string `json:"auction_id"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		c.sendFrame(OutError, map[string]string{"message": "message must not be empty"})
		return
	}
	if utf8.RuneCountInString(body.Message) > maxChatMessageLength {
		c.sendFrame(OutError, map[string]string{"message": "message exceeds 500 characters"})
		return
	}
	auctionID := body.AuctionID
	if auctionID == "" {
		auctionID = c.AuctionID()
	}
	if auctionID == "" {
		c.sendFrame(OutError, map[string]string{"message": "not in an auction room"})
		return
	}

	msg := domain.ChatMessage{
		MessageID:       uuid.NewString(),
		AuctionID:       auctionID,
		UserID:          c.UserID,
		Username:        c.Username,
		SenderSessionID: c.SessionID,
		Message:         body.Message,
		TimestampMS:     time.Now().UnixMilli(),
	}

	if err := c.hub.store.PushChatMessage(ctx, msg); err != nil {
		c.hub.log.Error().Err(err).Msg("failed to push chat message")
		return
	}

	// Echo the sender's own message immediately instead of waiting on the
	// pub/sub round trip; the fan-out mux excludes this session so it's
	// never delivered twice (sender-echo-suppression, spec §4.4).
	c.sendFrame(OutChatMessage, msg)

	if err := c.hub.store.PublishChat(ctx, auctionID, msg); err != nil {
		c.hub.log.Error().Err(err).Msg("failed to publish chat message")
	}
}
