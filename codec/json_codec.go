package codec

import (
	"encoding/json"

	"clawdash/message"
)

// JSONCodec is the gateway's native wire format, sent as WebSocket text frames.
type JSONCodec struct{}

func (c *JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte) (*message.Envelope, error) {
	var env message.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ParseError{Reason: "malformed json frame", Err: err}
	}
	if err := validate(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
