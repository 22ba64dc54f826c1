package realtime

import (
	"errors"
	"sync"

	"github.com/autocare360/autocare-backend/internal/models"
)

// PoolRoom holds every subscribed staff session.
const PoolRoom = "pool"

var ErrForeignTopic = errors.New("topic does not belong to this session")

// Router tracks live sessions. A user may hold several sessions (tabs); a
// session only receives events after subscribing to its own user topic.
type Router struct {
	mu         sync.RWMutex
	sessions   map[string]*Connection
	subscribed map[uint]map[string]*Connection // userID -> sessionID -> conn
	rooms      map[string]map[string]*Connection
}

func NewRouter() *Router {
	return &Router{
		sessions:   make(map[string]*Connection),
		subscribed: make(map[uint]map[string]*Connection),
		rooms:      make(map[string]map[string]*Connection),
	}
}

// Attach registers the connection and runs its loops until it closes.
func (r *Router) Attach(conn *Connection) {
	r.mu.Lock()
	r.sessions[conn.ID] = conn
	r.mu.Unlock()

	go conn.writeLoop()
	conn.readLoop(r)
}

// Detach removes a connection and all of its memberships.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	delete(r.sessions, conn.ID)
	r.removeSubscriptionLocked(conn)
	r.mu.Unlock()
}

// Subscribe binds conn to topic. Only the connection's own user topic is
// accepted; staff sessions also join the pool room.
func (r *Router) Subscribe(conn *Connection, topic string) error {
	userID, err := models.ParseUserTopic(topic)
	if err != nil {
		return err
	}
	if userID != conn.UserID {
		return ErrForeignTopic
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn.ID]; !ok {
		return ErrConnectionClosed
	}
	set := r.subscribed[userID]
	if set == nil {
		set = make(map[string]*Connection)
		r.subscribed[userID] = set
	}
	set[conn.ID] = conn
	if conn.Role.IsStaff() {
		r.joinLocked(PoolRoom, conn)
	}
	return nil
}

// Unsubscribe drops the topic registration but keeps the socket open.
func (r *Router) Unsubscribe(conn *Connection, topic string) {
	userID, err := models.ParseUserTopic(topic)
	if err != nil || userID != conn.UserID {
		return
	}
	r.mu.Lock()
	r.removeSubscriptionLocked(conn)
	r.mu.Unlock()
}

// Deliver writes payload once to every session of the given users plus,
// when pool is set, every staff session. It returns the number of sessions
// that accepted the payload.
func (r *Router) Deliver(userIDs []uint, pool bool, payload []byte) int {
	r.mu.RLock()
	targets := make(map[string]*Connection)
	for _, id := range userIDs {
		for sid, conn := range r.subscribed[id] {
			targets[sid] = conn
		}
	}
	if pool {
		for sid, conn := range r.rooms[PoolRoom] {
			targets[sid] = conn
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// SessionCount returns the number of subscribed sessions for userID.
func (r *Router) SessionCount(userID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribed[userID])
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	sessions := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
	}
	r.sessions = make(map[string]*Connection)
	r.subscribed = make(map[uint]map[string]*Connection)
	r.rooms = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "server shutdown")
	}
}

func (r *Router) joinLocked(room string, conn *Connection) {
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[conn.ID] = conn
}

func (r *Router) removeSubscriptionLocked(conn *Connection) {
	if set := r.subscribed[conn.UserID]; set != nil {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(r.subscribed, conn.UserID)
		}
	}
	for name, members := range r.rooms {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(r.rooms, name)
		}
	}
}
