package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clawdash/message"
	"clawdash/transport"
)

// phase is where a call stands in the exchange:
//
//	connecting ──open──► awaitingHandshake ──connect ok──► awaitingResult ──res──► done
//	     └───────────── error / close / timeout / cancel ─────────────────────────► done
type phase int

const (
	phaseConnecting phase = iota
	phaseAwaitingHandshake
	phaseAwaitingResult
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseConnecting:
		return "connecting"
	case phaseAwaitingHandshake:
		return "awaiting-handshake"
	case phaseAwaitingResult:
		return "awaiting-result"
	default:
		return "done"
	}
}

// call is one Invoke: one resolution, one connection, one handshake, one method
// request, all under one deadline. Only the goroutine running run touches phase and
// the tracker; the slot and the connection close are shared with the deadline timer.
type call struct {
	client   *Client
	endpoint transport.Endpoint
	method   string
	params   map[string]any
	timeout  time.Duration
	logger   *slog.Logger

	phase   phase
	slot    *resultSlot
	tracker *tracker
	guard   *deadlineGuard

	// stopResolve aborts an in-flight resolution when the deadline fires.
	stopResolve context.CancelFunc

	connMu sync.Mutex
	conn   transport.Conn
	closed bool
}

func newCall(c *Client, method string, params map[string]any, timeout time.Duration) *call {
	if params == nil {
		params = map[string]any{}
	}
	slot := newResultSlot()
	return &call{
		client:      c,
		method:      method,
		params:      params,
		timeout:     timeout,
		logger:      c.logger.With("method", method),
		slot:        slot,
		tracker:     newTracker(slot),
		guard:       newDeadlineGuard(c.clock),
		stopResolve: func() {},
	}
}

func (c *call) run(ctx context.Context) (json.RawMessage, error) {
	rctx, stop := context.WithCancel(ctx)
	defer stop()
	c.stopResolve = stop

	c.guard.arm(c.timeout, c.expire)
	defer c.teardown()

	if !c.resolve(ctx, rctx) {
		return c.slot.result()
	}

	// Cancellation is handled below so that it always surfaces as ErrCancelled rather
	// than as whatever the aborted dial reports.
	conn := c.client.dialer.Open(context.WithoutCancel(ctx), c.endpoint)
	if !c.attach(conn) {
		return c.slot.result()
	}

	events := conn.Events()
	cancelled := ctx.Done()
	for {
		select {
		case <-c.slot.done:
			payload, err := c.slot.result()
			c.logger.Debug("gateway call finished", "phase", c.phase, "error", err)
			return payload, err
		case <-cancelled:
			cancelled = nil
			c.fail(fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))
		case ev, ok := <-events:
			if !ok {
				events = nil
				c.fail(&TransportError{Message: "connection closed"})
				continue
			}
			c.handle(ev)
		}
	}
}

// resolve picks the gateway for this call under the call's deadline. It reports false
// when the call already has an outcome.
func (c *call) resolve(ctx, rctx context.Context) bool {
	endpoint, err := c.client.resolver.Resolve(rctx)
	switch {
	case c.slot.isFilled():
		return false
	case ctx.Err() != nil:
		c.slot.fill(nil, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))
		return false
	case err != nil:
		c.slot.fill(nil, &TransportError{Message: "resolving gateway: " + err.Error(), Err: err})
		return false
	}
	c.endpoint = endpoint
	return true
}

// attach installs conn as the call's connection. If the deadline fired while the
// connection was being opened, conn is closed at once and attach reports false.
func (c *call) attach(conn transport.Conn) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		conn.Close()
		return false
	}
	c.conn = conn
	return true
}

func (c *call) handle(ev transport.Event) {
	if c.phase == phaseDone {
		return
	}
	switch ev.Kind {
	case transport.EventOpen:
		if c.phase != phaseConnecting {
			return
		}
		c.phase = phaseAwaitingHandshake
		c.send(message.MethodConnect, c.client.connectParams(c.endpoint.Credential))

	case transport.EventMessage:
		c.handleFrame(ev.Data)

	case transport.EventError:
		msg := "connection error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		c.fail(&TransportError{Message: msg, Err: ev.Err})

	case transport.EventClosed:
		c.fail(&TransportError{Message: "connection closed before the call completed"})
	}
}

func (c *call) handleFrame(data []byte) {
	env, err := c.client.codec.Decode(data)
	if err != nil {
		c.logger.Warn("ignoring undecodable frame", "phase", c.phase, "error", err)
		return
	}
	if env.Type != message.KindResponse {
		c.logger.Debug("ignoring frame", "type", env.Type, "event", env.Event)
		return
	}
	if !c.tracker.matches(env.ID) {
		c.logger.Debug("ignoring response for another request", "id", env.ID)
		return
	}

	switch c.phase {
	case phaseAwaitingHandshake:
		if !env.OK {
			c.tracker.reject(env.ID, &HandshakeRejectedError{Code: errorCode(env), Message: env.ErrorMessage()})
			c.teardown()
			return
		}
		c.logger.Debug("gateway handshake accepted")
		c.phase = phaseAwaitingResult
		c.send(c.method, c.params)

	case phaseAwaitingResult:
		if env.OK {
			c.tracker.resolve(env.ID, env.Result())
		} else {
			c.tracker.reject(env.ID, &RPCError{Method: c.method, Code: errorCode(env), Message: env.ErrorMessage()})
		}
		c.teardown()
	}
}

// send encodes a request with a fresh correlation id, registers the id, then writes it.
func (c *call) send(method string, params any) {
	id := c.client.newID()
	data, err := c.client.codec.Encode(&message.Envelope{
		Type:   message.KindRequest,
		ID:     id,
		Method: method,
		Params: params,
	})
	if err != nil {
		c.fail(fmt.Errorf("gateway rpc: encoding %s request: %w", method, err))
		return
	}
	c.tracker.register(id)
	if err := c.conn.Send(data); err != nil {
		c.fail(&TransportError{Message: fmt.Sprintf("sending %s: %v", method, err), Err: err})
	}
}

// fail records err unless the call already has an outcome, then tears down.
func (c *call) fail(err error) {
	c.slot.fill(nil, err)
	c.teardown()
}

// expire runs on the clock's goroutine. It must not touch phase or the tracker.
func (c *call) expire() {
	if c.slot.fill(nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)) {
		c.stopResolve()
		c.closeConn()
	}
}

func (c *call) teardown() {
	c.phase = phaseDone
	c.guard.disarm()
	c.closeConn()
}

func (c *call) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
	}
}

func errorCode(env *message.Envelope) string {
	if env.Error == nil {
		return ""
	}
	return string(env.Error.Code)
}
