// Package protocol implements the frame format used by the raw TCP gateway transport.
//
// WebSocket already delimits messages; a plain TCP stream does not. Each envelope is
// therefore prefixed by a fixed 10-byte header carrying the body length, and the reader
// consumes exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│mt│ bodyLen │    body ...    │
//	│ ocg  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
//
// Correlation is not part of the frame: the envelope inside the body carries its own id.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicNumber byte   = 0x6f // 'o'
	MagicByte2  byte   = 0x63 // 'c'
	MagicByte3  byte   = 0x67 // 'g'
	Version     byte   = 0x01
	HeaderSize  int    = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (bodyLen)
	MaxBodyLen  uint32 = 16 << 20
)

// MsgType distinguishes envelope frames from keepalive frames.
type MsgType byte

const (
	MsgTypeEnvelope  MsgType = 0 // body is one encoded envelope
	MsgTypeHeartbeat MsgType = 1 // keepalive, no body
)

// Codec type constants, mirrored from the codec package to avoid an import cycle.
const (
	CodecTypeJSON byte = 0
	CodecTypeCBOR byte = 1
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte
	MsgType   MsgType
	BodyLen   uint32
}

// Encode writes header and body to w as one frame. Callers sharing w between goroutines
// must serialize calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodyLen {
		return fmt.Errorf("protocol: body of %d bytes exceeds limit", len(body))
	}
	buf := make([]byte, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	// Single write so a frame is never split between two writers.
	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r, validating magic, version, codec and message type.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("protocol: invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("protocol: unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeCBOR {
		return nil, nil, fmt.Errorf("protocol: unsupported codec type: %d", headerBuf[4])
	}
	msgType := MsgType(headerBuf[5])
	if msgType != MsgTypeEnvelope && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("protocol: unsupported message type: %d", msgType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("protocol: frame body of %d bytes exceeds limit", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		BodyLen:   bodyLen,
	}, body, nil
}
