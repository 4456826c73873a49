package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: the bridge carries the same protocol as the
// TCP listener, which has no origin notion either.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS upgrades an HTTP request and runs the standard connection
// handler over the WebSocket transport, one JSON message per text frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		conn.Close()
		return
	}
	s.wg.Add(1)
	go s.handleConn(newWSTransport(conn, s.cfg.MaxLineBytes, s.cfg.WriteTimeout()))
}
