// Package message defines the envelope exchanged with the agent gateway.
//
// Every frame on the connection is one Envelope. Requests and responses are paired by
// the ID field only; the method name is never used for correlation.
//
//   - On request:  Type="req", ID and Method are set, Params carries the arguments.
//   - On response: Type="res", ID echoes the request, OK reports success, Payload (or the
//     legacy Data field) carries the result and Error describes a failure.
//   - On event:    Type="event", Event names it. Events are out-of-band and never answer a request.
package message

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind distinguishes request, response and event frames.
type Kind string

const (
	KindRequest  Kind = "req"
	KindResponse Kind = "res"
	KindEvent    Kind = "event"
)

// Envelope is the wire unit in both directions.
type Envelope struct {
	Type    Kind            `json:"type" cbor:"type"`
	ID      string          `json:"id,omitempty" cbor:"id,omitempty"`
	Method  string          `json:"method,omitempty" cbor:"method,omitempty"`
	Params  any             `json:"params,omitempty" cbor:"params,omitempty"`
	OK      bool            `json:"ok,omitempty" cbor:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" cbor:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty" cbor:"data,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty" cbor:"error,omitempty"`
	Event   string          `json:"event,omitempty" cbor:"event,omitempty"`
}

// Result returns the response payload, falling back to Data for gateways that still
// answer with the older field name. A null payload counts as absent.
func (e *Envelope) Result() json.RawMessage {
	if !isNull(e.Payload) {
		return e.Payload
	}
	return e.Data
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ErrorMessage returns the remote error message, or "unknown" when the gateway sent none.
func (e *Envelope) ErrorMessage() string {
	if e.Error == nil || e.Error.Message == "" {
		return "unknown"
	}
	return e.Error.Message
}

// ErrorShape is the {code, message} object carried by failed responses.
type ErrorShape struct {
	Code    ErrorCode `json:"code,omitempty" cbor:"code,omitempty"`
	Message string    `json:"message" cbor:"message"`
}

// ErrorCode holds a remote error code. Gateways send either a number or a string, so
// both forms decode into the same textual value.
type ErrorCode string

// UnmarshalJSON accepts a JSON string or number.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ErrorCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ErrorCode(n.String())
	return nil
}

// Int returns the code as an integer when it is numeric.
func (c ErrorCode) Int() (int, bool) {
	n, err := strconv.Atoi(string(c))
	return n, err == nil
}
