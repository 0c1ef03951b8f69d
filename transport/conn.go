package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// eventBuffer leaves room for open, a few messages and the terminal close without
// blocking the reader goroutine on a slow subscriber.
const eventBuffer = 16

// link is a connected, message-delimited channel. read returns io.EOF on a clean remote
// close. Implementations serialize their own writes and allow close concurrently with
// read and write.
type link interface {
	read() ([]byte, error)
	write(data []byte) error
	close() error
}

// eventConn turns a link into a Conn: it dials in the background, pumps inbound
// messages into the event channel and guarantees a single terminal EventClosed.
type eventConn struct {
	events    chan Event
	done      chan struct{} // closed by Close
	closeOnce sync.Once
	cancel    context.CancelFunc // aborts a dial still in flight

	mu     sync.Mutex
	link   link
	closed bool
}

func open(ctx context.Context, dial func(context.Context) (link, error)) *eventConn {
	dialCtx, cancel := context.WithCancel(ctx)
	c := &eventConn{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.run(dialCtx, dial)
	return c
}

func (c *eventConn) Events() <-chan Event {
	return c.events
}

func (c *eventConn) run(ctx context.Context, dial func(context.Context) (link, error)) {
	defer close(c.events)
	defer c.emitClosed()
	defer c.cancel()

	l, err := dial(ctx)
	if err != nil {
		if !c.isClosed() {
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("transport: dial: %w", err)})
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		// Close won the race against the dial; nobody will ever use this link.
		c.mu.Unlock()
		l.close()
		return
	}
	c.link = l
	c.mu.Unlock()

	c.emit(Event{Kind: EventOpen})

	for {
		data, err := l.read()
		if err != nil {
			if err != io.EOF && !c.isClosed() {
				c.emit(Event{Kind: EventError, Err: fmt.Errorf("transport: read: %w", err)})
			}
			l.close()
			return
		}
		if !c.emit(Event{Kind: EventMessage, Data: data}) {
			return
		}
	}
}

// emit delivers ev unless the Conn has been closed locally. Reports whether it was delivered.
func (c *eventConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// emitClosed prefers delivering the terminal event even after a local Close, as long as
// there is buffer room for it.
func (c *eventConn) emitClosed() {
	ev := Event{Kind: EventClosed}
	select {
	case c.events <- ev:
	default:
		c.emit(ev)
	}
}

func (c *eventConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *eventConn) Send(data []byte) error {
	c.mu.Lock()
	l, closed := c.link, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if l == nil {
		return ErrNotOpen
	}
	if err := l.write(data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *eventConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		l := c.link
		c.mu.Unlock()

		close(c.done)
		c.cancel()
		if l != nil {
			l.close()
		}
	})
	return nil
}
