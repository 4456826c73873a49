package server

import (
	"context"
	"time"
)

// statusReporter periodically logs a summary of connected clients and live
// sessions. It stays quiet while the server is idle.
func (s *Server) statusReporter(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients, sessions := s.reg.Status()
			if clients == 0 && len(sessions) == 0 {
				continue
			}
			log.Infow("status", "clients", clients, "sessions", len(sessions))
			for _, st := range sessions {
				log.Infow("session status",
					"id", shortID(st.ID),
					"framerate", st.Framerate,
					"running", st.Running,
					"timecode", st.Timecode,
					"members", st.Members)
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
