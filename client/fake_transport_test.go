package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clawdash/codec"
	"clawdash/message"
	"clawdash/transport"
)

// fakeConn records what the call sends and lets tests inject events. A script, if set,
// runs synchronously inside Send and may push replies.
type fakeConn struct {
	events chan transport.Event

	mu     sync.Mutex
	sent   [][]byte
	closes int
	sentCh chan struct{}
	script func(c *fakeConn, env *message.Envelope)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan transport.Event, 64),
		sentCh: make(chan struct{}, 64),
	}
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closes > 0 {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	script := c.script
	c.mu.Unlock()
	c.sentCh <- struct{}{}

	if script != nil {
		env, err := (&codec.JSONCodec{}).Decode(data)
		if err != nil {
			panic(err)
		}
		script(c, env)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) push(ev transport.Event) { c.events <- ev }

func (c *fakeConn) open() { c.push(transport.Event{Kind: transport.EventOpen}) }

func (c *fakeConn) pushFrame(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.push(transport.Event{Kind: transport.EventMessage, Data: data})
}

func (c *fakeConn) pushRaw(s string) {
	c.push(transport.Event{Kind: transport.EventMessage, Data: []byte(s)})
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) sentEnvelopes(t *testing.T) []*message.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	envs := make([]*message.Envelope, 0, len(c.sent))
	for _, data := range c.sent {
		env, err := (&codec.JSONCodec{}).Decode(data)
		if err != nil {
			t.Fatalf("client sent undecodable frame %q: %v", data, err)
		}
		envs = append(envs, env)
	}
	return envs
}

// waitSent blocks until n frames have been sent in total.
func (c *fakeConn) waitSent(t *testing.T, n int) {
	t.Helper()
	for {
		c.mu.Lock()
		count := len(c.sent)
		c.mu.Unlock()
		if count >= n {
			return
		}
		select {
		case <-c.sentCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d sent frames, have %d", n, count)
		}
	}
}

// fakeDialer hands out connections from newConn and records every Open.
type fakeDialer struct {
	newConn func() *fakeConn

	mu        sync.Mutex
	conns     []*fakeConn
	endpoints []transport.Endpoint
}

func dialerFor(conn *fakeConn) *fakeDialer {
	return &fakeDialer{newConn: func() *fakeConn { return conn }}
}

func (d *fakeDialer) Open(ctx context.Context, endpoint transport.Endpoint) transport.Conn {
	conn := d.newConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.endpoints = append(d.endpoints, endpoint)
	d.mu.Unlock()
	return conn
}

// waitOpened blocks until Open has been called n times.
func (d *fakeDialer) waitOpened(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return d.opened() >= n
	}, 5*time.Second, time.Millisecond, "dialer never opened %d connections", n)
}

func (d *fakeDialer) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func response(id string, ok bool, payload any) map[string]any {
	frame := map[string]any{"type": "res", "id": id, "ok": ok}
	if payload != nil {
		frame["payload"] = payload
	}
	return frame
}

func failure(id, code, msg string) map[string]any {
	return map[string]any{"type": "res", "id": id, "ok": false, "error": map[string]any{"code": code, "message": msg}}
}

// gatewayScript answers connect with hello and every other method with result.
func gatewayScript(result any) func(c *fakeConn, env *message.Envelope) {
	return func(c *fakeConn, env *message.Envelope) {
		if env.Method == message.MethodConnect {
			c.pushFrame(response(env.ID, true, map[string]any{"type": "hello-ok", "protocol": 3}))
			return
		}
		c.pushFrame(response(env.ID, true, result))
	}
}

// openingConn is a conn that reports open immediately and runs script.
func openingConn(script func(c *fakeConn, env *message.Envelope)) *fakeConn {
	conn := newFakeConn()
	conn.script = script
	conn.open()
	return conn
}
