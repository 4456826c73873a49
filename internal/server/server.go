// Package server binds the listeners, accepts connections, and dispatches
// decoded requests into the session registry.
package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/tcsync/internal/config"
	"github.com/petervdpas/tcsync/internal/protocol"
	"github.com/petervdpas/tcsync/internal/session"
	"github.com/petervdpas/tcsync/internal/timecode"
)

var log = logging.Logger("server")

// Server owns the TCP listener, the optional WebSocket bridge, and the
// shutdown coordination across connection handlers.
type Server struct {
	cfg config.Config
	reg *session.Registry

	ln      net.Listener
	wsLn    net.Listener
	httpSrv *http.Server

	ctx    context.Context
	wg     sync.WaitGroup
	connMu sync.Mutex
	conns  map[*client]struct{}
}

func New(cfg config.Config) *Server {
	return &Server{
		cfg:   cfg,
		reg:   session.NewRegistry(),
		conns: make(map[*client]struct{}),
	}
}

// Listen binds the TCP listener and, when configured, the WebSocket bridge.
// A failure here is a bind failure; nothing has been served yet.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.ln = ln

	if s.cfg.WSAddr != "" {
		wsLn, err := net.Listen("tcp", s.cfg.WSAddr)
		if err != nil {
			ln.Close()
			return err
		}
		s.wsLn = wsLn
		mux := http.NewServeMux()
		mux.HandleFunc("/", s.handleWS)
		s.httpSrv = &http.Server{Handler: mux}
	}
	return nil
}

// Addr is the bound TCP address (useful when the configured port is 0).
func (s *Server) Addr() string { return s.ln.Addr().String() }

// WSAddr is the bound WebSocket address, or "" when the bridge is disabled.
func (s *Server) WSAddr() string {
	if s.wsLn == nil {
		return ""
	}
	return s.wsLn.Addr().String()
}

// Serve runs the accept loop until the context is cancelled, then shuts
// down: stop every session, notify every client, and wait out the handlers
// under the configured deadline.
func (s *Server) Serve(ctx context.Context) error {
	s.ctx = ctx
	log.Infow("listening", "addr", s.Addr())
	log.Infow("supported framerates", "keys", timecode.Keys())

	go func() {
		<-ctx.Done()
		s.ln.Close()
		if s.httpSrv != nil {
			s.httpSrv.Close()
		}
	}()

	if s.httpSrv != nil {
		log.Infow("websocket bridge listening", "addr", s.WSAddr())
		go func() {
			if err := s.httpSrv.Serve(s.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("websocket bridge failed", "err", err)
			}
		}()
	}

	if s.cfg.StatusReporting {
		go s.statusReporter(ctx)
	}

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Warnw("accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(newTCPTransport(conn, s.cfg.MaxLineBytes, s.cfg.WriteTimeout()))
	}

	s.shutdown()
	log.Infow("server stopped")
	return nil
}

// handleConn runs one connection: register the client, start its writer,
// then read requests until the peer goes away.
func (s *Server) handleConn(tr transport) {
	defer s.wg.Done()

	c := newClient(uuid.NewString(), tr, s.cfg.SendQueueLen)
	s.trackConn(c)
	defer s.untrackConn(c)

	s.reg.AddClient(c)
	log.Infow("client connected", "client", c.id, "remote", tr.RemoteAddr())

	go c.writeLoop()
	c.Enqueue(protocol.Welcome(c.id, timecode.Keys()))

	s.readLoop(c)

	c.Kick()
	<-c.writerDone
	s.reg.RemoveClient(c)
	log.Infow("client disconnected", "client", c.id)
}

func (s *Server) readLoop(c *client) {
	for {
		line, err := c.tr.ReadLine()
		if err != nil {
			if errors.Is(err, errTooLarge) {
				// The queue may be backed up and the connection is
				// closing anyway, so write the error directly.
				if b, encErr := protocol.EncodeMessage(protocol.Error(
					protocol.KindMessageTooLarge, "request exceeds line limit")); encErr == nil {
					_ = c.tr.WriteLine(b)
				}
				log.Warnw("oversized request", "client", c.id)
			}
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.dispatch(c, line)
	}
}

// dispatch decodes and executes one request. Request-level faults become
// error replies; only transport faults end the connection.
func (s *Server) dispatch(c *client, line []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("request panicked", "client", c.id, "panic", r)
			c.Enqueue(protocol.Error(protocol.KindInternalError, "internal server error"))
		}
	}()

	req, err := protocol.DecodeRequest(line)
	if err != nil {
		c.Enqueue(errorMessage(err))
		return
	}

	switch req.Type {
	case protocol.TypeCreateSession:
		if _, err := s.reg.CreateSession(c, req.Framerate, req.InitialTimecode); err != nil {
			c.Enqueue(errorMessage(err))
		}

	case protocol.TypeJoinSession:
		if _, err := s.reg.JoinSession(c, req.SessionID); err != nil {
			c.Enqueue(errorMessage(err))
		}

	case protocol.TypeLeaveSession:
		// Leaving with no session is a no-op, as in leave-before-join.
		s.reg.LeaveSession(c)

	case protocol.TypeStartTimecode:
		sess, err := s.reg.SessionFor(c)
		if err != nil {
			c.Enqueue(errorMessage(err))
			return
		}
		if tc, started := sess.Start(); !started {
			// Already running: ack the requester alone.
			c.Enqueue(protocol.TimecodeStarted(tc))
		}

	case protocol.TypeStopTimecode:
		sess, err := s.reg.SessionFor(c)
		if err != nil {
			c.Enqueue(errorMessage(err))
			return
		}
		if tc, stopped := sess.Stop(); !stopped {
			c.Enqueue(protocol.TimecodeStopped(tc))
		}

	case protocol.TypeResetTimecode:
		sess, err := s.reg.SessionFor(c)
		if err != nil {
			c.Enqueue(errorMessage(err))
			return
		}
		if _, err := sess.Reset(req.Timecode); err != nil {
			c.Enqueue(errorMessage(err))
		}
	}
}

// errorMessage maps internal errors onto wire error kinds.
func errorMessage(err error) protocol.Message {
	switch {
	case errors.Is(err, timecode.ErrUnknownFramerate):
		return protocol.Error(protocol.KindUnknownFramerate, err.Error())
	case errors.Is(err, timecode.ErrInvalidTimecode):
		return protocol.Error(protocol.KindInvalidTimecode, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		return protocol.Error(protocol.KindSessionNotFound, err.Error())
	case errors.Is(err, session.ErrNotInSession):
		return protocol.Error(protocol.KindNotInSession, err.Error())
	case errors.Is(err, protocol.ErrBadRequest):
		return protocol.Error(protocol.KindBadRequest, err.Error())
	default:
		return protocol.Error(protocol.KindInternalError, "internal server error")
	}
}

func (s *Server) trackConn(c *client) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(c *client) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

// shutdown stops every session, delivers server_shutdown, and winds the
// handlers down. Writers flush their queues best-effort; whatever survives
// the deadline is force-closed.
func (s *Server) shutdown() {
	s.reg.Shutdown()

	s.connMu.Lock()
	for c := range s.conns {
		c.Kick()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout()):
		log.Warnw("shutdown deadline passed, force-closing connections")
		s.connMu.Lock()
		for c := range s.conns {
			c.tr.Close()
		}
		s.connMu.Unlock()
		<-done
	}
}
