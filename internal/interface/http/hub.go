package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/messaging"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

// FeatureTypingIndicators gates the typing relay.
const FeatureTypingIndicators = "messaging.typing_indicators"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 4 << 10
	sendBufferSize = 32
)

// ══════════════════════════════════════════════════════════════════════════════
// HUB DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RoomAuthorizer decides whether a user may join or type in a match room.
// conversation.Gate satisfies it.
type RoomAuthorizer interface {
	AuthorizeActiveParticipant(ctx context.Context, matchID, userID string) (*matching.Match, error)
}

// Presence records connection liveness.
type Presence interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	Offline(ctx context.Context, userID string) error
}

// FeatureGate answers per-user feature flag checks.
type FeatureGate interface {
	IsEnabledFor(feature, userID string) bool
}

// LastActiveWriter persists lastActive.
type LastActiveWriter interface {
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// DirectPresence writes lastActive straight to the user store, at most once
// per interval per user. Used when Redis is not configured.
type DirectPresence struct {
	writer   LastActiveWriter
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDirectPresence creates a DirectPresence.
func NewDirectPresence(writer LastActiveWriter, interval time.Duration) *DirectPresence {
	return &DirectPresence{writer: writer, interval: interval, last: make(map[string]time.Time)}
}

// Touch implements Presence.
func (p *DirectPresence) Touch(ctx context.Context, userID string, at time.Time) error {
	p.mu.Lock()
	if at.Sub(p.last[userID]) < p.interval {
		p.mu.Unlock()
		return nil
	}
	p.last[userID] = at
	p.mu.Unlock()
	return p.writer.TouchLastActive(ctx, userID, at)
}

// Offline implements Presence.
func (p *DirectPresence) Offline(_ context.Context, userID string) error {
	p.mu.Lock()
	delete(p.last, userID)
	p.mu.Unlock()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FRAMES
// ══════════════════════════════════════════════════════════════════════════════

// Frame is what the hub writes to a socket.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundFrame is what clients send.
type inboundFrame struct {
	Type     string `json:"type"` // join | leave | typing
	MatchID  string `json:"matchId"`
	IsTyping bool   `json:"isTyping"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HUB
// ══════════════════════════════════════════════════════════════════════════════

// HubConfig wires a Hub. Presence and Features may be nil.
type HubConfig struct {
	Rooms    RoomAuthorizer
	Pusher   Pusher
	Presence Presence
	Features FeatureGate
	Logger   *logger.Logger

	// CheckOrigin overrides the upgrader origin policy.
	CheckOrigin func(r *http.Request) bool
}

// Hub fans push deliveries out to websocket connections, addressed either
// to a user or to a match room.
type Hub struct {
	cfg      HubConfig
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	users map[string]map[*client]struct{}
	rooms map[string]map[*client]struct{}
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan Frame

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		cfg:    cfg,
		logger: cfg.Logger.With(logger.Component("hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		users: make(map[string]map[*client]struct{}),
		rooms: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades an authenticated request and serves the connection until
// it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.UserID(userID), logger.Err(err))
		return
	}

	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan Frame, sendBufferSize),
		rooms:  make(map[string]struct{}),
	}
	h.register(c)
	h.touch(c.userID)
	c.enqueue(Frame{Type: "connected"})

	go c.writePump()
	c.readPump()
}

// Deliver routes one push delivery from the event bus. Subscribe it to
// messaging.EventDelivery. A match.archived delivery to a room is the last
// frame that room gets; every instance closes its copy on receipt.
func (h *Hub) Deliver(ev shared.Event) error {
	env, err := messaging.DecodeDelivery(ev)
	if err != nil {
		return err
	}
	frame := Frame{Type: string(env.Type), Data: env.Data}

	h.mu.RLock()
	var targets map[*client]struct{}
	switch env.Audience {
	case shared.AudienceUser:
		targets = h.users[env.Target]
	case shared.AudienceMatchRoom:
		targets = h.rooms[env.Target]
	}
	for c := range targets {
		c.enqueue(frame)
	}
	h.mu.RUnlock()

	if env.Audience == shared.AudienceMatchRoom && env.Type == shared.EventMatchArchived {
		h.CloseRoom(env.Target)
	}
	return nil
}

// CloseRoom removes every member from a match room.
func (h *Hub) CloseRoom(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[matchID] {
		delete(c.rooms, matchID)
	}
	delete(h.rooms, matchID)
}

// Connections reports how many sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomSize reports how many sockets joined matchID.
func (h *Hub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

// unregister drops c everywhere and reports whether it was the user's last
// connection.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for matchID := range c.rooms {
		h.leaveLocked(c, matchID)
	}
	peers := h.users[c.userID]
	delete(peers, c)
	if len(peers) == 0 {
		delete(h.users, c.userID)
		return true
	}
	return false
}

func (h *Hub) join(c *client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[matchID] == nil {
		h.rooms[matchID] = make(map[*client]struct{})
	}
	h.rooms[matchID][c] = struct{}{}
	c.rooms[matchID] = struct{}{}
}

func (h *Hub) leave(c *client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, matchID)
}

func (h *Hub) leaveLocked(c *client, matchID string) {
	delete(c.rooms, matchID)
	if members, ok := h.rooms[matchID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, matchID)
		}
	}
}

func (h *Hub) touch(userID string) {
	if h.cfg.Presence == nil {
		return
	}
	if err := h.cfg.Presence.Touch(context.Background(), userID, time.Now().UTC()); err != nil {
		h.logger.Warn("presence touch failed", logger.UserID(userID), logger.Err(err))
	}
}

func (h *Hub) offline(userID string) {
	if h.cfg.Presence == nil {
		return
	}
	if err := h.cfg.Presence.Offline(context.Background(), userID); err != nil {
		h.logger.Warn("presence offline failed", logger.UserID(userID), logger.Err(err))
	}
}

// handleInbound applies one client frame.
func (h *Hub) handleInbound(c *client, in inboundFrame) {
	ctx := context.Background()
	switch in.Type {
	case "join":
		if _, err := h.cfg.Rooms.AuthorizeActiveParticipant(ctx, in.MatchID, c.userID); err != nil {
			c.enqueue(errorFrame(err))
			return
		}
		h.join(c, in.MatchID)
		c.enqueue(Frame{Type: "joined", Data: map[string]string{"matchId": in.MatchID}})

	case "leave":
		h.leave(c, in.MatchID)

	case "typing":
		if h.cfg.Features != nil && !h.cfg.Features.IsEnabledFor(FeatureTypingIndicators, c.userID) {
			return
		}
		if _, err := h.cfg.Rooms.AuthorizeActiveParticipant(ctx, in.MatchID, c.userID); err != nil {
			c.enqueue(errorFrame(err))
			return
		}
		if h.cfg.Pusher != nil {
			h.cfg.Pusher.Push(ctx, []shared.Delivery{
				shared.ToMatchRoom(in.MatchID, shared.NewTypingEvent(in.MatchID, c.userID, in.IsTyping)),
			})
		}

	default:
		c.enqueue(Frame{Type: "error", Data: map[string]string{"code": "unknown_type"}})
	}
}

func errorFrame(err error) Frame {
	data := map[string]string{"code": "error"}
	switch {
	case shared.IsAuthorization(err):
		data["code"] = "forbidden"
		data["reason"] = shared.AuthorizationReason(err)
	case shared.IsNotFound(err):
		data["code"] = "not_found"
	case shared.IsValidation(err):
		data["code"] = "validation_error"
	}
	return Frame{Type: "error", Data: data}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT PUMPS
// ══════════════════════════════════════════════════════════════════════════════

// enqueue drops the frame when the client's buffer is full.
func (c *client) enqueue(f Frame) {
	select {
	case c.send <- f:
	default:
		c.hub.logger.Debug("dropping frame for slow client", logger.UserID(c.userID), logger.String("type", f.Type))
	}
}

func (c *client) readPump() {
	defer func() {
		if c.hub.unregister(c) {
			c.hub.offline(c.userID)
		}
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.hub.touch(c.userID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket closed", logger.UserID(c.userID), logger.Err(err))
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(payload, &in); err != nil {
			c.enqueue(Frame{Type: "error", Data: map[string]string{"code": "invalid_frame"}})
			continue
		}
		c.hub.handleInbound(c, in)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
