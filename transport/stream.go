package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"clawdash/protocol"
)

// StreamDialer opens gateway connections over plain TCP using the frame format of the
// protocol package. Addresses look like tcp://host:port.
type StreamDialer struct {
	// Binary marks outgoing frames as CBOR instead of JSON.
	Binary bool

	// Heartbeat is the keepalive interval; zero disables keepalive frames.
	Heartbeat time.Duration
}

func (d *StreamDialer) Open(ctx context.Context, endpoint Endpoint) Conn {
	return open(ctx, func(ctx context.Context) (link, error) {
		u, err := url.Parse(endpoint.Address)
		if err != nil {
			return nil, err
		}
		if u.Host == "" {
			return nil, fmt.Errorf("missing host in %q", endpoint.Address)
		}
		var nd net.Dialer
		conn, err := nd.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		codecType := protocol.CodecTypeJSON
		if d.Binary {
			codecType = protocol.CodecTypeCBOR
		}
		l := &streamLink{conn: conn, codecType: codecType, stop: make(chan struct{})}
		if d.Heartbeat > 0 {
			go l.heartbeatLoop(d.Heartbeat)
		}
		return l, nil
	})
}

type streamLink struct {
	conn      net.Conn
	codecType byte
	sending   sync.Mutex // whole frames only; heartbeats share the socket
	stop      chan struct{}
	stopOnce  sync.Once
}

// read returns the next envelope frame, skipping keepalives.
func (l *streamLink) read() ([]byte, error) {
	for {
		header, body, err := protocol.Decode(l.conn)
		if err != nil {
			return nil, err
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		return body, nil
	}
}

func (l *streamLink) write(data []byte) error {
	l.sending.Lock()
	defer l.sending.Unlock()
	return protocol.Encode(l.conn, &protocol.Header{
		CodecType: l.codecType,
		MsgType:   protocol.MsgTypeEnvelope,
	}, data)
}

func (l *streamLink) close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return l.conn.Close()
}

func (l *streamLink) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		l.sending.Lock()
		err := protocol.Encode(l.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
		l.sending.Unlock()
		if err != nil {
			return
		}
	}
}
