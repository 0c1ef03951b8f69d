// Package codec serializes gateway envelopes.
//
// Decode does more than unmarshal: it checks the minimal shape every frame must have
// and reports anything else as a *ParseError. Callers treat a ParseError as "ignore this
// frame" since unrelated traffic on the connection must not abort a pending exchange.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"clawdash/message"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	Decode(data []byte) (*message.Envelope, error)
	Type() CodecType // 0=JSON, 1=CBOR
}

// GetCodec returns the codec for codecType, JSON for anything unknown.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeCBOR {
		return &CBORCodec{}
	}
	return &JSONCodec{}
}

// ParseCodecType maps a configuration name ("json", "cbor") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return CodecTypeJSON, nil
	case "cbor":
		return CodecTypeCBOR, nil
	default:
		return 0, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func (t CodecType) String() string {
	if t == CodecTypeCBOR {
		return "cbor"
	}
	return "json"
}

// ParseError reports an inbound frame that could not be decoded into a usable envelope.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: %s: %v", e.Reason, e.Err)
	}
	return "codec: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// validate enforces the minimal envelope shape shared by every codec.
func validate(env *message.Envelope) error {
	switch env.Type {
	case message.KindResponse:
		if env.ID == "" {
			return &ParseError{Reason: "response without id"}
		}
	case message.KindRequest:
		if env.ID == "" || env.Method == "" {
			return &ParseError{Reason: "request without id or method"}
		}
	case message.KindEvent:
		if env.Event == "" {
			return &ParseError{Reason: "event without name"}
		}
	case "":
		return &ParseError{Reason: "missing frame type"}
	default:
		return &ParseError{Reason: fmt.Sprintf("unknown frame type %q", env.Type)}
	}
	return nil
}
