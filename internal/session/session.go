// Package session owns the timecode session state: membership, the running
// ticker, and the registry that maps sessions and clients. All mutation of a
// session's fields happens under its own mutex; broadcasts enqueue to member
// queues without blocking, so the lock is never held across I/O.
package session

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/tcsync/internal/protocol"
	"github.com/petervdpas/tcsync/internal/timecode"
)

var log = logging.Logger("session")

// Member is a session participant. Implementations wrap a client connection
// with a bounded outbound queue.
type Member interface {
	ID() string
	// Enqueue offers a message to the member's outbound queue without
	// blocking. It reports false when the queue is full.
	Enqueue(msg protocol.Message) bool
	// Kick forcibly disconnects the member. Invoked under the
	// slow-consumer policy; must not block.
	Kick()
}

// Session is one timecode session. Its id is assigned at creation and its
// framerate never changes.
type Session struct {
	ID   string
	Rate timecode.Framerate

	mu      sync.Mutex
	current timecode.Frame
	running bool
	closed  bool
	members map[string]Member

	// Ticker epoch: the wall-clock instant at which current was last pinned
	// to real time, and the frame count at that instant. The generation
	// bumps on every start and reset so a sleeping ticker can tell its
	// schedule is stale.
	epochWall  time.Time
	epochFrame timecode.Frame
	epochGen   uint64

	cancel     context.CancelFunc
	tickerDone chan struct{}
}

// New creates a stopped session positioned at the given frame.
func New(id string, rate timecode.Framerate, initial timecode.Frame) *Session {
	return &Session{
		ID:      id,
		Rate:    rate,
		current: initial,
		members: make(map[string]Member),
	}
}

// Timecode returns the current position as display text.
func (s *Session) Timecode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timecode.Format(s.current, s.Rate)
}

// Running reports whether the ticker is live.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Join adds a member and confirms with a session_joined carrying the current
// position. It reports false when the session has already been torn down, in
// which case the caller should treat the session as gone.
func (s *Session) Join(m Member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.members[m.ID()] = m
	tc := timecode.Format(s.current, s.Rate)
	s.deliverLocked(m, protocol.SessionJoined(s.ID, s.Rate.Key, tc, s.running))
	return true
}

// Leave removes a member. When notify is set the member receives a
// session_left as its final session-scoped message. Reports whether the
// member was present and whether the session is now empty.
func (s *Session) Leave(m Member, notify bool) (wasMember, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID()]; !ok {
		return false, len(s.members) == 0
	}
	delete(s.members, m.ID())
	if notify {
		m.Enqueue(protocol.SessionLeft(s.ID))
	}
	return true, len(s.members) == 0
}

// Start spawns the ticker. Starting a running session is a no-op; the
// returned flag tells the caller whether a transition happened (and was
// broadcast) or the ack should go to the requester alone.
func (s *Session) Start() (tc string, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc = timecode.Format(s.current, s.Rate)
	if s.closed || s.running {
		return tc, false
	}
	s.running = true
	s.epochWall = time.Now()
	s.epochFrame = s.current
	s.epochGen++

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.tickerDone = done
	go s.runTicker(ctx, done)

	s.broadcastLocked(protocol.TimecodeStarted(tc))
	log.Infow("timecode started", "session", s.ID, "timecode", tc)
	return tc, true
}

// Stop cancels the ticker and waits for it to exit. Stopping a stopped
// session is a no-op, mirroring Start.
func (s *Session) Stop() (tc string, stopped bool) {
	s.mu.Lock()
	if !s.running {
		tc = timecode.Format(s.current, s.Rate)
		s.mu.Unlock()
		return tc, false
	}
	s.running = false
	cancel, done := s.cancel, s.tickerDone
	s.cancel, s.tickerDone = nil, nil
	s.mu.Unlock()

	// The ticker publishes under s.mu, so the wait happens outside it.
	cancel()
	<-done

	s.mu.Lock()
	tc = timecode.Format(s.current, s.Rate)
	s.broadcastLocked(protocol.TimecodeStopped(tc))
	s.mu.Unlock()
	log.Infow("timecode stopped", "session", s.ID, "timecode", tc)
	return tc, true
}

// Reset repositions the session, re-pins the ticker epoch, and broadcasts
// timecode_reset. Legal whether running or stopped; empty text means
// 00:00:00:00.
func (s *Session) Reset(text string) (string, error) {
	frame := timecode.Zero
	if text != "" {
		f, err := timecode.Parse(text, s.Rate)
		if err != nil {
			return "", err
		}
		frame = f
	}

	s.mu.Lock()
	s.current = frame
	s.epochWall = time.Now()
	s.epochFrame = frame
	s.epochGen++
	tc := timecode.Format(frame, s.Rate)
	s.broadcastLocked(protocol.TimecodeReset(tc))
	s.mu.Unlock()

	log.Infow("timecode reset", "session", s.ID, "timecode", tc)
	return tc, nil
}

// Broadcast enqueues a message to every member, applying the slow-consumer
// policy to any member whose queue is full.
func (s *Session) Broadcast(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(msg)
}

// CloseIfEmpty tears the session down if it has no members. Used by the
// registry to collect abandoned sessions; reports whether teardown happened.
func (s *Session) CloseIfEmpty() bool {
	s.mu.Lock()
	if s.closed || len(s.members) > 0 {
		s.mu.Unlock()
		return false
	}
	cancel, done := s.teardownLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return true
}

// Close tears the session down unconditionally (server shutdown). Members
// are not notified here; the shutdown path broadcasts server_shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, done := s.teardownLocked()
	s.members = make(map[string]Member)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Session) teardownLocked() (context.CancelFunc, chan struct{}) {
	s.closed = true
	s.running = false
	cancel, done := s.cancel, s.tickerDone
	s.cancel, s.tickerDone = nil, nil
	return cancel, done
}

// broadcastLocked fans a message out to every member queue. Enqueueing is
// non-blocking, so holding s.mu here cannot stall on a slow socket, and it
// keeps session_left strictly last for any member that just left.
func (s *Session) broadcastLocked(msg protocol.Message) {
	for id, m := range s.members {
		if !m.Enqueue(msg) {
			delete(s.members, id)
			log.Warnw("dropping slow consumer", "session", s.ID, "member", id)
			m.Kick()
		}
	}
}

// deliverLocked sends to one member with the same slow-consumer policy.
func (s *Session) deliverLocked(m Member, msg protocol.Message) {
	if !m.Enqueue(msg) {
		delete(s.members, m.ID())
		log.Warnw("dropping slow consumer", "session", s.ID, "member", m.ID())
		m.Kick()
	}
}
