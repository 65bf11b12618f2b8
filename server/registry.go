package server

import (
	"fmt"
	"sync"

	"github.com/decred/slog"
)

// session is the hub-side record of one live connection: who it is and
// which tournament rooms it has joined.
type session struct {
	userID   int64
	username string
	rooms    map[int64]struct{}
}

// Hub is the connection registry. It owns the connection→identity binding
// and room membership for the whole process; every mutation goes through
// its methods. A "room" is nothing more than the set of connections whose
// room-set contains a tournament id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Conn]*session

	log slog.Logger
}

func NewHub(log slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Conn]*session),
		log:      log,
	}
}

// Register binds a fresh connection to a user identity. Each physical
// connection gets its own handle, so a double registration is a bug.
func (h *Hub) Register(c *Conn, userID int64, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[c]; ok {
		return fmt.Errorf("connection %s already registered", c.id)
	}
	h.sessions[c] = &session{
		userID:   userID,
		username: username,
		rooms:    make(map[int64]struct{}),
	}
	h.log.Debugf("registered connection %s for user %d", c.id, userID)
	return nil
}

// Unregister removes the connection and tells every room it was in. The
// connection is dropped from the registry first, so none of the leave
// broadcasts can target it.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	sess, ok := h.sessions[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, c)
	rooms := make([]int64, 0, len(sess.rooms))
	for roomID := range sess.rooms {
		rooms = append(rooms, roomID)
	}
	h.mu.Unlock()

	for _, roomID := range rooms {
		h.Broadcast(roomID, "tournament:leave", leaveEvent{
			UserID:       sess.userID,
			TournamentID: roomID,
		}, nil)
	}
	h.log.Debugf("unregistered connection %s (user %d, %d rooms)", c.id, sess.userID, len(rooms))
}

// User returns the identity bound to a connection.
func (h *Hub) User(c *Conn) (userID int64, username string, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sess, ok := h.sessions[c]
	if !ok {
		return 0, "", false
	}
	return sess.userID, sess.username, true
}

// JoinRoom adds roomID to the connection's room-set. Unknown connections
// are a normal race (already gone) and a no-op.
func (h *Hub) JoinRoom(c *Conn, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.sessions[c]; ok {
		sess.rooms[roomID] = struct{}{}
	}
}

// LeaveRoom removes roomID from the connection's room-set. It never
// closes the connection.
func (h *Hub) LeaveRoom(c *Conn, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.sessions[c]; ok {
		delete(sess.rooms, roomID)
	}
}

// IsInRoom reports room membership.
func (h *Hub) IsInRoom(c *Conn, roomID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sess, ok := h.sessions[c]
	if !ok {
		return false
	}
	_, in := sess.rooms[roomID]
	return in
}

// Broadcast serializes the event once and queues it on every member of
// the room, minus the excluded connection if any. A failed send on one
// connection is logged and never stops delivery to the rest.
func (h *Hub) Broadcast(roomID int64, event string, data any, exclude *Conn) {
	b, err := marshalEvent(event, data)
	if err != nil {
		h.log.Errorf("marshal %s broadcast for room %d: %v", event, roomID, err)
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.sessions))
	for c, sess := range h.sessions {
		if c == exclude {
			continue
		}
		if _, in := sess.rooms[roomID]; in {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.enqueue(b); err != nil {
			h.log.Debugf("broadcast %s to room %d: %v", event, roomID, err)
		}
	}
}

// CloseAll drops every registered connection, for shutdown. No leave
// events; the process is going away with the rooms.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.sessions))
	for c := range h.sessions {
		conns = append(conns, c)
	}
	h.sessions = make(map[*Conn]*session)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
