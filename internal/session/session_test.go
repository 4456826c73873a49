package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petervdpas/tcsync/internal/protocol"
	"github.com/petervdpas/tcsync/internal/timecode"
)

// fakeMember collects delivered messages on a bounded channel, like a real
// client's outbound queue.
type fakeMember struct {
	id     string
	ch     chan protocol.Message
	kicked atomic.Bool
}

func newFakeMember(id string, queue int) *fakeMember {
	return &fakeMember{id: id, ch: make(chan protocol.Message, queue)}
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Enqueue(msg protocol.Message) bool {
	select {
	case f.ch <- msg:
		return true
	default:
		return false
	}
}

func (f *fakeMember) Kick() { f.kicked.Store(true) }

// next receives one message or fails the test.
func (f *fakeMember) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-f.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("member %s: no message within deadline", f.id)
		return protocol.Message{}
	}
}

// drainType receives messages until one of the given type arrives.
func (f *fakeMember) drainType(t *testing.T, msgType string) protocol.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-f.ch:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("member %s: no %s within deadline", f.id, msgType)
		}
	}
}

func newTestSession(t *testing.T, rateKey, initial string) *Session {
	t.Helper()
	rate, err := timecode.Lookup(rateKey)
	if err != nil {
		t.Fatal(err)
	}
	frame := timecode.Zero
	if initial != "" {
		frame, err = timecode.Parse(initial, rate)
		if err != nil {
			t.Fatal(err)
		}
	}
	s := New("test-session", rate, frame)
	t.Cleanup(s.Close)
	return s
}

func TestJoinDeliversConfirmation(t *testing.T) {
	s := newTestSession(t, "24", "01:00:00:00")
	m := newFakeMember("c1", 8)
	if !s.Join(m) {
		t.Fatal("Join returned false")
	}

	msg := m.next(t)
	if msg.Type != protocol.TypeSessionJoined {
		t.Fatalf("first message = %s, want session_joined", msg.Type)
	}
	if msg.SessionID != s.ID || msg.Framerate != "24" || msg.Timecode != "01:00:00:00" {
		t.Fatalf("session_joined = %+v", msg)
	}
	if msg.Running == nil || *msg.Running {
		t.Fatalf("running = %v, want false", msg.Running)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestSession(t, "24", "")
	m := newFakeMember("c1", 64)
	s.Join(m)
	m.next(t) // session_joined

	tc, started := s.Start()
	if !started || tc != "00:00:00:00" {
		t.Fatalf("Start = (%q, %v)", tc, started)
	}
	if msg := m.next(t); msg.Type != protocol.TypeTimecodeStarted {
		t.Fatalf("expected timecode_started, got %s", msg.Type)
	}
	if !s.Running() {
		t.Fatal("session not running after Start")
	}

	if _, started := s.Start(); started {
		t.Fatal("second Start reported a transition")
	}

	if _, stopped := s.Stop(); !stopped {
		t.Fatal("Stop on a running session reported no transition")
	}
	if s.Running() {
		t.Fatal("session still running after Stop")
	}
	if msg := m.drainType(t, protocol.TypeTimecodeStopped); msg.Timecode == "" {
		t.Fatal("timecode_stopped missing timecode")
	}

	if _, stopped := s.Stop(); stopped {
		t.Fatal("second Stop reported a transition")
	}
}

func TestResetValidation(t *testing.T) {
	s := newTestSession(t, "29.97", "")
	m := newFakeMember("c1", 8)
	s.Join(m)
	m.next(t)

	if _, err := s.Reset("00:01:00:00"); !errors.Is(err, timecode.ErrInvalidTimecode) {
		t.Fatalf("Reset(dropped label) err = %v, want ErrInvalidTimecode", err)
	}
	if _, err := s.Reset("garbage"); !errors.Is(err, timecode.ErrInvalidTimecode) {
		t.Fatalf("Reset(garbage) err = %v, want ErrInvalidTimecode", err)
	}

	tc, err := s.Reset("10:00:00:00")
	if err != nil || tc != "10:00:00:00" {
		t.Fatalf("Reset = (%q, %v)", tc, err)
	}
	if msg := m.next(t); msg.Type != protocol.TypeTimecodeReset || msg.Timecode != "10:00:00:00" {
		t.Fatalf("broadcast = %+v", msg)
	}

	tc, err = s.Reset("")
	if err != nil || tc != "00:00:00:00" {
		t.Fatalf("Reset(default) = (%q, %v)", tc, err)
	}
}

func TestLeaveIsFinal(t *testing.T) {
	s := newTestSession(t, "24", "")
	m := newFakeMember("c1", 64)
	s.Join(m)
	m.next(t)

	wasMember, empty := s.Leave(m, true)
	if !wasMember || !empty {
		t.Fatalf("Leave = (%v, %v)", wasMember, empty)
	}
	if msg := m.next(t); msg.Type != protocol.TypeSessionLeft || msg.SessionID != s.ID {
		t.Fatalf("expected session_left, got %+v", msg)
	}

	// Nothing session-scoped may arrive after session_left.
	s.Broadcast(protocol.TimecodeUpdate("00:00:00:01"))
	select {
	case msg := <-m.ch:
		t.Fatalf("message after session_left: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if wasMember, _ := s.Leave(m, true); wasMember {
		t.Fatal("second Leave reported membership")
	}
}

func TestSlowConsumerDropped(t *testing.T) {
	s := newTestSession(t, "24", "")
	slow := newFakeMember("slow", 1)
	ok := newFakeMember("ok", 16)
	s.Join(slow) // fills the 1-slot queue with session_joined
	s.Join(ok)
	ok.next(t)

	s.Broadcast(protocol.TimecodeUpdate("00:00:00:01"))

	if !slow.kicked.Load() {
		t.Fatal("slow consumer was not kicked")
	}
	if msg := ok.next(t); msg.Type != protocol.TypeTimecodeUpdate {
		t.Fatalf("healthy member got %s", msg.Type)
	}

	// The dropped member is out of the member set: later broadcasts skip it.
	<-slow.ch // free the queue slot
	s.Broadcast(protocol.TimecodeUpdate("00:00:00:02"))
	ok.next(t)
	select {
	case msg := <-slow.ch:
		t.Fatalf("dropped member still receiving: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinAfterCloseFails(t *testing.T) {
	s := newTestSession(t, "24", "")
	s.Close()
	if s.Join(newFakeMember("late", 8)) {
		t.Fatal("Join succeeded on a closed session")
	}
}
