package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"clawdash/message"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	// any-typed targets must come back as map[string]any so they survive a trip through
	// encoding/json on the way to the caller.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// cborEnvelope is the CBOR wire shape. Payloads travel as native CBOR values rather than
// embedded JSON text, and the error code may be any scalar.
type cborEnvelope struct {
	Type    message.Kind `cbor:"type"`
	ID      string       `cbor:"id,omitempty"`
	Method  string       `cbor:"method,omitempty"`
	Params  any          `cbor:"params,omitempty"`
	OK      bool         `cbor:"ok,omitempty"`
	Payload any          `cbor:"payload,omitempty"`
	Data    any          `cbor:"data,omitempty"`
	Error   *cborError   `cbor:"error,omitempty"`
	Event   string       `cbor:"event,omitempty"`
}

type cborError struct {
	Code    any    `cbor:"code,omitempty"`
	Message string `cbor:"message"`
}

// CBORCodec encodes envelopes with Core Deterministic Encoding, sent as binary frames.
type CBORCodec struct{}

func (c *CBORCodec) Encode(env *message.Envelope) ([]byte, error) {
	wire := cborEnvelope{
		Type:   env.Type,
		ID:     env.ID,
		Method: env.Method,
		Params: env.Params,
		OK:     env.OK,
		Event:  env.Event,
	}
	var err error
	if wire.Payload, err = fromJSON(env.Payload); err != nil {
		return nil, fmt.Errorf("codec: payload: %w", err)
	}
	if wire.Data, err = fromJSON(env.Data); err != nil {
		return nil, fmt.Errorf("codec: data: %w", err)
	}
	if env.Error != nil {
		wire.Error = &cborError{Message: env.Error.Message}
		if env.Error.Code != "" {
			wire.Error.Code = string(env.Error.Code)
		}
	}
	return cborEnc.Marshal(wire)
}

func (c *CBORCodec) Decode(data []byte) (*message.Envelope, error) {
	var wire cborEnvelope
	if err := cborDec.Unmarshal(data, &wire); err != nil {
		return nil, &ParseError{Reason: "malformed cbor frame", Err: err}
	}
	env := &message.Envelope{
		Type:   wire.Type,
		ID:     wire.ID,
		Method: wire.Method,
		Params: wire.Params,
		OK:     wire.OK,
		Event:  wire.Event,
	}
	var err error
	if env.Payload, err = toJSON(wire.Payload); err != nil {
		return nil, &ParseError{Reason: "payload is not representable as json", Err: err}
	}
	if env.Data, err = toJSON(wire.Data); err != nil {
		return nil, &ParseError{Reason: "data is not representable as json", Err: err}
	}
	if wire.Error != nil {
		env.Error = &message.ErrorShape{Message: wire.Error.Message}
		if wire.Error.Code != nil {
			env.Error.Code = message.ErrorCode(fmt.Sprint(wire.Error.Code))
		}
	}
	if err := validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}

func fromJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
