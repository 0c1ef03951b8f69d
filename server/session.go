package server

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clawdash/codec"
	"clawdash/message"
	"clawdash/middleware"
	"clawdash/protocol"
)

// peer is one accepted connection, WebSocket or framed TCP. Every frame carries its own
// codec so a session answers in whatever encoding the request arrived in.
type peer interface {
	readFrame() ([]byte, codec.CodecType, error)
	writeFrame(data []byte, ct codec.CodecType) error
	close() error
}

type session struct {
	srv  *Server
	peer peer

	writeMu    sync.Mutex // whole frames only; handlers answer concurrently
	handshaken atomic.Bool
	closeOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

func (s *Server) serveSession(p peer) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{srv: s, peer: p, ctx: ctx, cancel: cancel}
	if !s.track(sess) {
		p.close()
		cancel()
		return
	}
	defer s.untrack(sess)
	defer sess.close()

	sess.send(&message.Envelope{
		Type:    message.KindEvent,
		Event:   "connect.challenge",
		Payload: mustJSON(map[string]any{"nonce": randomNonce(), "ts": time.Now().UnixMilli()}),
	}, codec.CodecTypeJSON)

	for {
		data, ct, err := p.readFrame()
		if err != nil {
			return
		}
		env, err := codec.GetCodec(ct).Decode(data)
		if err != nil {
			s.logger.Debug("mock gateway: ignoring frame", "error", err)
			continue
		}
		if env.Type != message.KindRequest {
			continue
		}

		if env.Method == message.MethodConnect {
			if !sess.connect(env, ct) {
				return
			}
			continue
		}
		if !sess.handshaken.Load() {
			sess.fail(env.ID, ct, &Error{Code: CodeInvalidRequest, Message: "first request must be connect"})
			continue
		}

		s.wg.Add(1)
		go func(env *message.Envelope, ct codec.CodecType) {
			defer s.wg.Done()
			sess.handle(env, ct)
		}(env, ct)
	}
}

// connect validates the handshake and reports whether the session continues.
func (sess *session) connect(env *message.Envelope, ct codec.CodecType) bool {
	srv := sess.srv
	var params message.ConnectParams
	if err := remarshal(env.Params, &params); err != nil {
		sess.fail(env.ID, ct, &Error{Code: CodeInvalidRequest, Message: "invalid connect params: " + err.Error()})
		return false
	}
	if params.MaxProtocol < srv.minProtocol || params.MinProtocol > srv.maxProtocol {
		sess.fail(env.ID, ct, &Error{Code: CodeProtocolMismatch, Message: "protocol mismatch"})
		return false
	}
	if srv.token != "" && params.Auth.Token != srv.token {
		sess.fail(env.ID, ct, &Error{Code: CodeUnauthorized, Message: "unauthorized: gateway token mismatch"})
		return false
	}

	sess.handshaken.Store(true)
	srv.logger.Debug("mock gateway: client connected",
		"client", params.Client.ID, "role", params.Role, "version", params.Client.Version)
	sess.send(&message.Envelope{
		Type: message.KindResponse,
		ID:   env.ID,
		OK:   true,
		Payload: mustJSON(map[string]any{
			"type":     "hello-ok",
			"protocol": min(params.MaxProtocol, srv.maxProtocol),
			"server":   map[string]any{"version": Version},
		}),
	}, ct)
	return true
}

func (sess *session) handle(env *message.Envelope, ct codec.CodecType) {
	params, _ := env.Params.(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	result, err := sess.srv.chain()(sess.ctx, &middleware.Request{Method: env.Method, Params: params})
	if err != nil {
		sess.fail(env.ID, ct, toError(err))
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("{}")
	}
	sess.send(&message.Envelope{Type: message.KindResponse, ID: env.ID, OK: true, Payload: result}, ct)
}

func (sess *session) fail(id string, ct codec.CodecType, e *Error) {
	sess.send(&message.Envelope{
		Type:  message.KindResponse,
		ID:    id,
		OK:    false,
		Error: &message.ErrorShape{Code: message.ErrorCode(e.Code), Message: e.Message},
	}, ct)
}

func (sess *session) send(env *message.Envelope, ct codec.CodecType) {
	data, err := codec.GetCodec(ct).Encode(env)
	if err != nil {
		sess.srv.logger.Warn("mock gateway: encoding reply", "error", err)
		return
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.peer.writeFrame(data, ct); err != nil {
		sess.srv.logger.Debug("mock gateway: write failed", "error", err)
	}
}

func (sess *session) close() {
	sess.closeOnce.Do(func() {
		sess.cancel()
		sess.peer.close()
	})
}

type wsPeer struct {
	conn *websocket.Conn
}

func (p *wsPeer) readFrame() ([]byte, codec.CodecType, error) {
	mt, data, err := p.conn.ReadMessage()
	if err != nil {
		return nil, 0, err
	}
	if mt == websocket.BinaryMessage {
		return data, codec.CodecTypeCBOR, nil
	}
	return data, codec.CodecTypeJSON, nil
}

func (p *wsPeer) writeFrame(data []byte, ct codec.CodecType) error {
	mt := websocket.TextMessage
	if ct == codec.CodecTypeCBOR {
		mt = websocket.BinaryMessage
	}
	return p.conn.WriteMessage(mt, data)
}

func (p *wsPeer) close() error {
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return p.conn.Close()
}

type streamPeer struct {
	conn net.Conn
}

func (p *streamPeer) readFrame() ([]byte, codec.CodecType, error) {
	for {
		header, body, err := protocol.Decode(p.conn)
		if err != nil {
			return nil, 0, err
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		return body, codec.CodecType(header.CodecType), nil
	}
}

func (p *streamPeer) writeFrame(data []byte, ct codec.CodecType) error {
	return protocol.Encode(p.conn, &protocol.Header{
		CodecType: byte(ct),
		MsgType:   protocol.MsgTypeEnvelope,
	}, data)
}

func (p *streamPeer) close() error {
	return p.conn.Close()
}
