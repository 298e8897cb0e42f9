package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// OrgRoom is the room every client of an organization can join.
func OrgRoom(orgID uuid.UUID) string { return "org:" + orgID.String() }

// ThreadRoom is the room of one thread's viewers.
func ThreadRoom(threadID uuid.UUID) string { return "thread:" + threadID.String() }

// Hub maintains room -> set of connections and broadcasts events.
// With Redis configured, events are published to Redis only and the room
// subscription delivers them to local clients, so every instance (this one
// included) broadcasts exactly once.
type Hub struct {
	rooms map[string]map[string]*Client
	mu    sync.RWMutex

	// subMu serializes room subscriptions and guards subs. It is taken
	// before mu and held across Redis calls, which mu never is.
	subs  map[string]func()
	subMu sync.Mutex

	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes room events for cross-instance delivery.
type RedisPublisher interface {
	PublishRoom(ctx context.Context, room, event string, payload []byte) error
}

// RedisSubscriber subscribes to a room channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(room string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a
// single-instance deployment.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its room. Starts the Redis subscription for the
// room on its first client.
func (h *Hub) Register(c *Client) {
	if h.redisSub != nil {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		if _, ok := h.subs[c.Room]; !ok {
			room := c.Room
			cancel, err := h.redisSub.SubscribeRoom(room, func(event string, payload []byte) {
				h.Broadcast(room, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("room subscription failed", zap.String("room", room), zap.Error(err))
			} else {
				h.subs[room] = cancel
			}
		}
	}
	h.mu.Lock()
	if h.rooms[c.Room] == nil {
		h.rooms[c.Room] = make(map[string]*Client)
	}
	h.rooms[c.Room][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room", c.Room))
}

// Unregister removes a client. Cancels the Redis subscription when the last
// client of the room leaves.
func (h *Hub) Unregister(c *Client) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.mu.Lock()
	empty := false
	if m, ok := h.rooms[c.Room]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.Room)
			empty = true
		}
	}
	h.mu.Unlock()
	if empty {
		if cancel, ok := h.subs[c.Room]; ok {
			cancel()
			delete(h.subs, c.Room)
		}
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room", c.Room))
}

// Broadcast sends an event to all local clients of a room.
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// Publish delivers a chat event to the organization room and, when the
// event belongs to a thread, to the thread room.
func (h *Hub) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	rooms := []string{OrgRoom(ev.OrganizationID)}
	if ev.ThreadID != uuid.Nil {
		rooms = append(rooms, ThreadRoom(ev.ThreadID))
	}
	var firstErr error
	for _, room := range rooms {
		if h.redis == nil {
			h.Broadcast(room, string(ev.Type), json.RawMessage(data))
			continue
		}
		if err := h.redis.PublishRoom(ctx, room, string(ev.Type), data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RoomSize returns the number of local clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Send delivers an event to one client.
func (h *Hub) Send(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}
