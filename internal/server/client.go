package server

import (
	"context"
	"sync"

	"github.com/petervdpas/tcsync/internal/protocol"
)

// client wraps one connection with a bounded outbound queue. It implements
// session.Member, so sessions enqueue to it without blocking and kick it
// when the queue fills.
type client struct {
	id string
	tr transport

	out    chan protocol.Message
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce  sync.Once
	writerDone chan struct{}
}

func newClient(id string, tr transport, queueLen int) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:         id,
		tr:         tr,
		out:        make(chan protocol.Message, queueLen),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Enqueue offers a message to the outbound queue without blocking.
func (c *client) Enqueue(msg protocol.Message) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// Kick begins teardown: the writer flushes what is queued and closes the
// transport, which unblocks the read loop.
func (c *client) Kick() {
	c.closeOnce.Do(c.cancel)
}

// writeLoop drains the outbound queue to the transport. It owns the final
// transport close: after cancellation it flushes already-enqueued messages
// best-effort, then closes, unblocking the reader.
func (c *client) writeLoop() {
	defer close(c.writerDone)
	defer c.tr.Close()

	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case msg := <-c.out:
					if !c.write(msg) {
						return
					}
				default:
					return
				}
			}
		case msg := <-c.out:
			if !c.write(msg) {
				c.Kick()
				return
			}
		}
	}
}

func (c *client) write(msg protocol.Message) bool {
	b, err := protocol.EncodeMessage(msg)
	if err != nil {
		log.Errorw("encode failed", "client", c.id, "type", msg.Type, "err", err)
		return true
	}
	if err := c.tr.WriteLine(b); err != nil {
		return false
	}
	return true
}
