package session

import (
	"context"
	"time"

	"github.com/petervdpas/tcsync/internal/protocol"
	"github.com/petervdpas/tcsync/internal/timecode"
)

// runTicker advances the session at its nominal rate until the context is
// cancelled. Each frame is scheduled against the session epoch rather than
// the previous wakeup, so sleep jitter never accumulates into drift. A late
// wakeup emits only the frame due now: the logical count stays accurate and
// the displayed timecode jumps forward, but missed frames are not replayed.
func (s *Session) runTicker(ctx context.Context, done chan struct{}) {
	defer close(done)

	nominal := s.Rate.Nominal
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var gen uint64
	var last int64 // frames since epoch at the last emit
	for {
		s.mu.Lock()
		if s.epochGen != gen {
			gen = s.epochGen
			last = 0
		}
		epoch := s.epochWall
		s.mu.Unlock()

		next := last + 1
		target := epoch.Add(frameOffset(next, nominal))
		timer.Reset(time.Until(target))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if s.epochGen != gen {
			// The epoch moved while we slept (reset); reschedule
			// against it.
			s.mu.Unlock()
			continue
		}
		due := int64(time.Since(s.epochWall).Seconds() * nominal)
		if due < next {
			// Woke ahead of the frame boundary; go around and
			// re-sleep.
			s.mu.Unlock()
			continue
		}
		last = due
		s.current = timecode.Advance(s.epochFrame, s.Rate, due)
		s.broadcastLocked(protocol.TimecodeUpdate(timecode.Format(s.current, s.Rate)))
		s.mu.Unlock()
	}
}

// frameOffset is the wall-clock offset of frame k from the epoch.
func frameOffset(k int64, nominal float64) time.Duration {
	return time.Duration(float64(k) / nominal * float64(time.Second))
}
