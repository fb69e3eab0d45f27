// Package control implements the Playback & Control WebSocket Protocol:
// a duplex connection mixing binary frame messages with JSON command/
// response messages on the same channel, built on the same
// upgrade/readPump/ping-pong plumbing and mixed binary-and-JSON duplex
// pattern used elsewhere for streaming connections, generalized to a
// binary envelope tagged by a leading kind byte instead of base64-in-JSON
// framing.
package control

import (
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Envelope kind bytes — the first byte of every message on the wire.
const (
	KindBinaryFrame byte = 0x00
	KindText        byte = 0x01
)

// ErrShortEnvelope is returned when a binary-frame envelope is too
// short to contain its timestamp field.
var ErrShortEnvelope = errors.New("control: envelope shorter than timestamp field")

// ErrUnknownKind is returned for a leading byte that is neither
// KindBinaryFrame nor KindText.
var ErrUnknownKind = errors.New("control: unknown envelope kind")

// EncodeBinaryFrame builds a bit-exact `[0x00][8-byte LE i64][jpeg]`
// message.
func EncodeBinaryFrame(timestampMs int64, jpeg []byte) []byte {
	out := make([]byte, 1+8+len(jpeg))
	out[0] = KindBinaryFrame
	binary.LittleEndian.PutUint64(out[1:9], uint64(timestampMs))
	copy(out[9:], jpeg)
	return out
}

// EncodeText wraps a JSON payload in a `[0x01][json]` envelope.
func EncodeText(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(body))
	out[0] = KindText
	copy(out[1:], body)
	return out, nil
}

// DecodedFrame is the parsed payload of a binary-frame envelope.
type DecodedFrame struct {
	TimestampMs int64
	JPEG        []byte
}

// Decode parses a raw envelope. For any bytes with a leading 0x00 or
// 0x01 this either succeeds or returns an error, never panics; for any
// other leading byte it returns ErrUnknownKind.
func Decode(raw []byte) (kind byte, frame *DecodedFrame, text []byte, err error) {
	if len(raw) == 0 {
		return 0, nil, nil, ErrShortEnvelope
	}
	switch raw[0] {
	case KindBinaryFrame:
		if len(raw) < 9 {
			return KindBinaryFrame, nil, nil, ErrShortEnvelope
		}
		ts := int64(binary.LittleEndian.Uint64(raw[1:9]))
		jpeg := make([]byte, len(raw)-9)
		copy(jpeg, raw[9:])
		return KindBinaryFrame, &DecodedFrame{TimestampMs: ts, JPEG: jpeg}, nil, nil
	case KindText:
		return KindText, nil, raw[1:], nil
	default:
		return raw[0], nil, nil, ErrUnknownKind
	}
}
