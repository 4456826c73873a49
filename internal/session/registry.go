package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/petervdpas/tcsync/internal/protocol"
	"github.com/petervdpas/tcsync/internal/timecode"
)

// ErrSessionNotFound is returned by JoinSession for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// ErrNotInSession is returned by SessionFor when the client has no session.
var ErrNotInSession = errors.New("not in a session")

// clientState pairs a connected member with its current session, if any.
type clientState struct {
	member    Member
	sessionID string
}

// Registry is the process-wide owner of the session and client maps. The
// lock order is registry first, session second, never the reverse; session
// calls happen after the registry lock is released.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	clients  map[string]*clientState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		clients:  make(map[string]*clientState),
	}
}

// AddClient registers a freshly accepted client.
func (r *Registry) AddClient(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[m.ID()] = &clientState{member: m}
}

// CreateSession validates the framerate and initial timecode, creates a new
// session with a fresh id, and auto-joins the creator, leaving any prior
// session first. The creator receives session_created followed by the join
// confirmation.
func (r *Registry) CreateSession(m Member, framerateKey, initialTimecode string) (*Session, error) {
	rate, err := timecode.Lookup(framerateKey)
	if err != nil {
		return nil, err
	}
	frame := timecode.Zero
	if initialTimecode != "" {
		frame, err = timecode.Parse(initialTimecode, rate)
		if err != nil {
			return nil, err
		}
	}

	r.LeaveSession(m)

	sess := New(uuid.NewString(), rate, frame)
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	if st, ok := r.clients[m.ID()]; ok {
		st.sessionID = sess.ID
	}
	r.mu.Unlock()

	m.Enqueue(protocol.SessionCreated(sess.ID, rate.Key, timecode.Format(frame, rate)))
	sess.Join(m)
	log.Infow("session created", "session", sess.ID, "framerate", rate.Key, "creator", m.ID())
	return sess, nil
}

// JoinSession moves the client into the named session, leaving any prior
// session first.
func (r *Registry) JoinSession(m Member, sessionID string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	r.LeaveSession(m)

	if !sess.Join(m) {
		// Torn down between lookup and join.
		return nil, ErrSessionNotFound
	}
	r.mu.Lock()
	if st, ok := r.clients[m.ID()]; ok {
		st.sessionID = sessionID
	}
	r.mu.Unlock()
	log.Infow("client joined session", "session", sessionID, "client", m.ID())
	return sess, nil
}

// LeaveSession removes the client from its current session, if any, and
// collects the session when it becomes empty. Reports whether a session was
// left.
func (r *Registry) LeaveSession(m Member) bool {
	r.mu.Lock()
	st, ok := r.clients[m.ID()]
	if !ok || st.sessionID == "" {
		r.mu.Unlock()
		return false
	}
	sess := r.sessions[st.sessionID]
	st.sessionID = ""
	r.mu.Unlock()
	if sess == nil {
		return false
	}

	wasMember, empty := sess.Leave(m, true)
	if empty {
		r.collect(sess)
	}
	return wasMember
}

// SessionFor resolves the client's current session for control requests.
func (r *Registry) SessionFor(m Member) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.clients[m.ID()]
	if !ok || st.sessionID == "" {
		return nil, ErrNotInSession
	}
	sess, ok := r.sessions[st.sessionID]
	if !ok {
		return nil, ErrNotInSession
	}
	return sess, nil
}

// RemoveClient handles a disconnect: the client leaves any session and its
// entry is deleted.
func (r *Registry) RemoveClient(m Member) {
	r.LeaveSession(m)
	r.mu.Lock()
	delete(r.clients, m.ID())
	r.mu.Unlock()
}

// collect deletes an empty session. Join holds the session lock against
// CloseIfEmpty, so a client that squeezes in between the emptiness check and
// teardown keeps the session alive.
func (r *Registry) collect(sess *Session) {
	if !sess.CloseIfEmpty() {
		return
	}
	r.mu.Lock()
	delete(r.sessions, sess.ID)
	r.mu.Unlock()
	log.Infow("empty session collected", "session", sess.ID)
}

// SessionStatus is one row of the periodic status report.
type SessionStatus struct {
	ID        string
	Framerate string
	Timecode  string
	Running   bool
	Members   int
}

// Status snapshots client and session counts for the status reporter.
func (r *Registry) Status() (clients int, sessions []SessionStatus) {
	r.mu.Lock()
	clients = len(r.clients)
	snap := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snap = append(snap, sess)
	}
	memberCounts := make(map[string]int)
	for _, st := range r.clients {
		if st.sessionID != "" {
			memberCounts[st.sessionID]++
		}
	}
	r.mu.Unlock()

	for _, sess := range snap {
		sessions = append(sessions, SessionStatus{
			ID:        sess.ID,
			Framerate: sess.Rate.Key,
			Timecode:  sess.Timecode(),
			Running:   sess.Running(),
			Members:   memberCounts[sess.ID],
		})
	}
	return clients, sessions
}

// Shutdown stops every session and notifies every client. Callers close the
// client connections afterwards; the notice here is the last protocol
// message they receive.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	clients := make([]Member, 0, len(r.clients))
	for _, st := range r.clients {
		clients = append(clients, st.member)
	}
	r.sessions = make(map[string]*Session)
	r.clients = make(map[string]*clientState)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	for _, m := range clients {
		m.Enqueue(protocol.ServerShutdown())
	}
	log.Infow("registry shut down", "sessions", len(sessions), "clients", len(clients))
}
