package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// outboundBuffer bounds each connection's outbound queue. A peer that
// cannot drain this many frames is dropped-from, not waited-on, so one
// slow reader never stalls a room-wide fanout.
const outboundBuffer = 256

// Conn is the live per-socket record: verified identity, joined rooms
// and the outbound handle its write pump drains. The room set is guarded
// by the owning Registry's lock; identity is immutable after creation.
type Conn struct {
	id       string
	userID   uuid.UUID
	username string

	outbound    chan []byte
	rooms       map[string]struct{}
	sendLimiter *rateWindowCounter
	joinLimiter *rateWindowCounter

	connectedAt  time.Time
	lastLiveness atomic.Int64 // unix nanos
}

func NewConn(userID uuid.UUID, username string) *Conn {
	now := time.Now()
	c := &Conn{
		id:          uuid.NewString(),
		userID:      userID,
		username:    username,
		outbound:    make(chan []byte, outboundBuffer),
		rooms:       make(map[string]struct{}),
		sendLimiter: newRateWindow(sendLimit, rateWindow),
		joinLimiter: newRateWindow(joinLimit, rateWindow),
		connectedAt: now,
	}
	c.lastLiveness.Store(now.UnixNano())
	return c
}

func (c *Conn) ID() string        { return c.id }
func (c *Conn) UserID() uuid.UUID { return c.userID }
func (c *Conn) Username() string  { return c.username }

// Touch records inbound activity for the liveness timeout.
func (c *Conn) Touch() {
	c.lastLiveness.Store(time.Now().UnixNano())
}

// IdleFor reports how long since the peer last showed signs of life.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastLiveness.Load()))
}

// OnlineUser is one entry of the presence snapshot.
type OnlineUser struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Rooms       []string  `json:"rooms"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry is the process-wide map of live connections. Reads (fanout,
// lookups, presence) share the read lock; inserts, removals and room-set
// mutations are serialized under the write lock. Outbound channels are
// never closed: a removed connection's channel is simply orphaned, so a
// push racing a removal lands in a buffer nobody drains, which is the
// required swallow semantics.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		log:   log,
	}
}

// Insert adds a freshly accepted connection. Connection ids are random
// and never reused; a duplicate means the caller broke that invariant.
func (r *Registry) Insert(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.id]; ok {
		r.log.Panic("connection id already registered", zap.String("conn_id", c.id))
	}
	r.conns[c.id] = c
}

// Remove deletes the connection. Removing an absent id is a no-op so
// racing cleanup paths stay harmless.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// JoinedRooms returns a copy of the connection's room set, nil if the
// connection is gone.
func (r *Registry) JoinedRooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// AddRoom subscribes the connection to a room. Reports whether the room
// was newly added; re-joining is idempotent.
func (r *Registry) AddRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, joined := c.rooms[room]; joined {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

// RemoveRoom unsubscribes the connection from a room. Idempotent.
func (r *Registry) RemoveRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, joined := c.rooms[room]; !joined {
		return false
	}
	delete(c.rooms, room)
	return true
}

// Fanout pushes the frame to every connection subscribed to the room.
// Pushes never block: a full outbound queue drops the frame for that
// peer only, logged at debug level.
func (r *Registry) Fanout(room string, frame []byte) {
	if frame == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if _, joined := c.rooms[room]; joined {
			r.push(c, frame)
		}
	}
}

// FanoutExcept is Fanout minus one connection, used for presence
// notifications the acting connection gets a direct reply for.
func (r *Registry) FanoutExcept(room, exceptConnID string, frame []byte) {
	if frame == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.id == exceptConnID {
			continue
		}
		if _, joined := c.rooms[room]; joined {
			r.push(c, frame)
		}
	}
}

// SendToUser pushes the frame to every live connection of a user that
// has joined the room. Reports the number of connections reached; zero
// (user gone mid-exchange) is not an error.
func (r *Registry) SendToUser(room string, userID uuid.UUID, frame []byte) int {
	if frame == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		if c.userID != userID {
			continue
		}
		if _, joined := c.rooms[room]; joined {
			r.push(c, frame)
			n++
		}
	}
	return n
}

// SendToConn pushes to a single connection if it is still registered.
func (r *Registry) SendToConn(connID string, frame []byte) {
	if frame == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[connID]; ok {
		r.push(c, frame)
	}
}

// OnlineUsers aggregates connections into a per-user presence snapshot.
func (r *Registry) OnlineUsers() []OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := make(map[uuid.UUID]*OnlineUser)
	for _, c := range r.conns {
		entry, ok := byUser[c.userID]
		if !ok {
			entry = &OnlineUser{
				UserID:      c.userID,
				Username:    c.username,
				ConnectedAt: c.connectedAt,
			}
			byUser[c.userID] = entry
		}
		if c.connectedAt.Before(entry.ConnectedAt) {
			entry.ConnectedAt = c.connectedAt
		}
		for room := range c.rooms {
			entry.Rooms = append(entry.Rooms, room)
		}
	}

	users := make([]OnlineUser, 0, len(byUser))
	for _, entry := range byUser {
		users = append(users, *entry)
	}
	return users
}

func (r *Registry) push(c *Conn, frame []byte) {
	select {
	case c.outbound <- frame:
	default:
		r.log.Debug("outbound queue full, dropping frame",
			zap.String("conn_id", c.id),
			zap.String("username", c.username))
	}
}
