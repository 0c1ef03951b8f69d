package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens gateway connections over WebSocket.
type WebSocketDialer struct {
	// Binary sends binary frames instead of text frames.
	Binary bool

	// HandshakeTimeout bounds the HTTP upgrade; zero leaves it to the context.
	HandshakeTimeout time.Duration

	// ReadLimit caps a single inbound message; zero means 16 MiB.
	ReadLimit int64
}

func (d *WebSocketDialer) Open(ctx context.Context, endpoint Endpoint) Conn {
	return open(ctx, func(ctx context.Context) (link, error) {
		return d.dial(ctx, endpoint)
	})
}

func (d *WebSocketDialer) dial(ctx context.Context, endpoint Endpoint) (link, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	header := http.Header{}
	if endpoint.Credential != "" {
		header.Set("Authorization", "Bearer "+endpoint.Credential)
	}

	conn, resp, err := dialer.DialContext(ctx, NormalizeAddress(endpoint.Address), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = 16 << 20
	}
	conn.SetReadLimit(limit)

	messageType := websocket.TextMessage
	if d.Binary {
		messageType = websocket.BinaryMessage
	}
	return &wsLink{conn: conn, messageType: messageType}, nil
}

type wsLink struct {
	conn        *websocket.Conn
	messageType int
	writeMu     sync.Mutex // gorilla allows one concurrent writer
}

func (l *wsLink) read() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (l *wsLink) write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(l.messageType, data)
}

func (l *wsLink) close() error {
	// Best-effort close frame so the gateway sees a clean shutdown; Close and
	// WriteControl are safe alongside a concurrent reader.
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return l.conn.Close()
}
