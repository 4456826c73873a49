package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport abstracts one client connection: the TCP line protocol and the
// WebSocket bridge speak the same messages over different framing.
type transport interface {
	// ReadLine blocks for the next request payload, without its framing.
	ReadLine() ([]byte, error)
	// WriteLine writes one encoded message. Safe for concurrent use.
	WriteLine(b []byte) error
	Close() error
	RemoteAddr() string
}

// errTooLarge marks an oversized inbound request; the connection is closed
// after a MessageTooLarge error is sent.
var errTooLarge = errors.New("request line too large")

// ─── TCP ─────────────────────────────────────────────────────────────────────

type tcpTransport struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newTCPTransport(conn net.Conn, maxLine int, writeTimeout time.Duration) *tcpTransport {
	scanner := bufio.NewScanner(conn)
	// The initial capacity must not exceed maxLine: Scan's token limit is
	// the larger of the two.
	scanner.Buffer(make([]byte, 0, 1024), maxLine)
	return &tcpTransport{conn: conn, scanner: scanner, writeTimeout: writeTimeout}
}

func (t *tcpTransport) ReadLine() ([]byte, error) {
	if t.scanner.Scan() {
		return t.scanner.Bytes(), nil
	}
	if err := t.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errTooLarge
		}
		return nil, err
	}
	return nil, io.EOF
}

func (t *tcpTransport) WriteLine(b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	// A bounded deadline keeps a stalled peer from wedging the writer.
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	_, err := t.conn.Write(b)
	return err
}

func (t *tcpTransport) Close() error { return t.conn.Close() }

func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// ─── WebSocket bridge ────────────────────────────────────────────────────────

type wsTransport struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, maxLine int, writeTimeout time.Duration) *wsTransport {
	conn.SetReadLimit(int64(maxLine))
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadLine() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, errTooLarge
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteLine(b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	// One message per WebSocket frame; the newline framing is TCP-only.
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

func (t *wsTransport) Close() error { return t.conn.Close() }

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
