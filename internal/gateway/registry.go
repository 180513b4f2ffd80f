package gateway

import (
	"sync"
	"time"

	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/session"
)

// entry bundles everything a Registry tracks for one live connection:
// its socket wrapper, its outbound channel, and the session currently
// bound to it (nil until a session is created or resumed).
type entry struct {
	conn    *Connection
	channel *outbound.Channel
	sess    *session.Session
}

// sessionRecord indexes a session by its own ID rather than by
// whichever connection currently owns it, so a user.reconnect can
// find it after its original connection has already been unregistered.
// orphanedAt is zero while a live connection owns the session; once
// that connection drops it is set, and the record is reaped after the
// configured reconnect grace period.
type sessionRecord struct {
	sess         *session.Session
	history      *outbound.History
	connectionID string
	orphanedAt   time.Time
}

// Registry tracks every currently-connected socket, generalizing a
// per-user map-of-maps session tracker into a single flat map keyed by
// connection ID (this gateway has no per-user identity concept). It
// additionally indexes sessions by session ID so a dropped connection
// doesn't strand its session: the session and its replay history
// outlive the connection entry until reaped.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	sessions map[string]*sessionRecord
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		sessions: make(map[string]*sessionRecord),
	}
}

// Register adds a newly accepted connection, closing and replacing any
// previous connection that happened to reuse the same ID.
func (r *Registry) Register(conn *Connection, channel *outbound.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[conn.ID]; ok {
		old.conn.Close()
	}
	r.entries[conn.ID] = &entry{conn: conn, channel: channel}
}

// Unregister removes a connection, typically called when its ServeHTTP
// goroutine returns. Any session still bound to it is not discarded:
// it is marked orphaned so a later user.reconnect can still find it and
// its history within the reconnect grace period.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connectionID]
	delete(r.entries, connectionID)
	if !ok || e.sess == nil {
		return
	}
	if rec, ok := r.sessions[e.sess.ID]; ok && rec.connectionID == connectionID {
		rec.orphanedAt = time.Now()
	}
}

// BindSession attaches sess to an already-registered connection and
// (re)indexes it by session ID, pointing future reconnects at this
// connection's channel history going forward. Safe to call both for a
// brand new session and to rebind an existing one to a new connection.
func (r *Registry) BindSession(connectionID string, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connectionID]
	if !ok {
		return
	}
	e.sess = sess
	r.sessions[sess.ID] = &sessionRecord{
		sess:         sess,
		history:      e.channel.History(),
		connectionID: connectionID,
	}
}

// Session returns the session bound to connectionID, if any.
func (r *Registry) Session(connectionID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connectionID]
	if !ok || e.sess == nil {
		return nil, false
	}
	return e.sess, true
}

// SessionByID looks up a session by its own ID regardless of which
// connection (if any) currently owns it — the lookup user.reconnect
// needs, since the reconnecting socket has a brand new connection ID.
func (r *Registry) SessionByID(sessionID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.sess, true
}

// HistoryByID returns the replay history last associated with
// sessionID, i.e. the history ring of whichever channel most recently
// served it, even if that channel's connection has since dropped.
func (r *Registry) HistoryByID(sessionID string) (*outbound.History, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.history, true
}

// Channel returns the outbound channel for connectionID, if registered.
func (r *Registry) Channel(connectionID string) (*outbound.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connectionID]
	if !ok {
		return nil, false
	}
	return e.channel, true
}

// Len reports the number of live connections, used by /healthz.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Broadcast calls send with every currently registered connection's
// channel, used for the periodic system.heartbeat.
func (r *Registry) Broadcast(send func(ch *outbound.Channel)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		send(e.channel)
	}
}

// ReapOrphanedSessions discards any session whose owning connection
// dropped more than grace ago and was never reconnected. Called
// periodically from the heartbeat loop.
func (r *Registry) ReapOrphanedSessions(grace time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, rec := range r.sessions {
		if !rec.orphanedAt.IsZero() && now.Sub(rec.orphanedAt) > grace {
			delete(r.sessions, id)
		}
	}
}
