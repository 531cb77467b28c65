// Package frame implements the broker's wire codec (§3 Frame, §4.1): a
// length-prefixed binary framing read from and written to a persistent
// net.Conn.
package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// StartByte marks the beginning of every frame.
const StartByte byte = 0xAA

// MessageType identifies the semantic purpose of a frame (§6).
type MessageType byte

const (
	Connect             MessageType = 0x01
	ConnectAck          MessageType = 0x02
	Disconnect          MessageType = 0x03
	Ping                MessageType = 0x04
	PingAck             MessageType = 0x05
	SignalOffer         MessageType = 0x10
	SignalAnswer        MessageType = 0x11
	SignalICECandidate  MessageType = 0x12
	Register            MessageType = 0x20
	RegisterAck         MessageType = 0x21
	Unregister          MessageType = 0x22
	UnregisterAck       MessageType = 0x23
	RoomCreate          MessageType = 0x30
	RoomCreateAck       MessageType = 0x31
	RoomJoin            MessageType = 0x32
	RoomJoinAck         MessageType = 0x33
	RoomLeave           MessageType = 0x34
	RoomLeaveAck        MessageType = 0x35
	ErrorType           MessageType = 0xFF
)

var knownMessageTypes = map[MessageType]bool{
	Connect: true, ConnectAck: true, Disconnect: true, Ping: true, PingAck: true,
	SignalOffer: true, SignalAnswer: true, SignalICECandidate: true,
	Register: true, RegisterAck: true, Unregister: true, UnregisterAck: true,
	RoomCreate: true, RoomCreateAck: true, RoomJoin: true, RoomJoinAck: true,
	RoomLeave: true, RoomLeaveAck: true, ErrorType: true,
}

func (t MessageType) Known() bool { return knownMessageTypes[t] }

// PayloadType identifies the payload's encoding (§6).
type PayloadType byte

const (
	PayloadBinary   PayloadType = 0x01
	PayloadJSON     PayloadType = 0x02
	PayloadText     PayloadType = 0x03
	PayloadProtobuf PayloadType = 0x04
	PayloadCBOR     PayloadType = 0x05
)

var knownPayloadTypes = map[PayloadType]bool{
	PayloadBinary: true, PayloadJSON: true, PayloadText: true,
	PayloadProtobuf: true, PayloadCBOR: true,
}

func (t PayloadType) Known() bool { return knownPayloadTypes[t] }

// MaxPayloadLength is the hard ceiling imposed by the 2-byte length field
// (§4.1, §9): no frame can ever declare a longer payload than this,
// independent of a configured max_message_size.
const MaxPayloadLength = 65535

// Frame is the wire unit described by §3.
type Frame struct {
	MessageType MessageType
	MessageID   uuid.UUID
	PayloadType PayloadType
	Payload     []byte
}

// Sentinel errors for the decoder taxonomy in §4.1/§7. Each is a class of
// protocol failure; ErrMalformedFrame and ErrPayloadTooLarge come back
// without a Frame and end the session with no ERROR reply (§4.1: "the
// stream position after failure is implementation-defined ... no
// resynchronization attempt").
var (
	ErrMalformedFrame    = errors.New("frame: malformed frame (bad start byte)")
	ErrUnknownMessage    = errors.New("frame: unknown message_type")
	ErrUnknownPayload    = errors.New("frame: unknown payload_type")
	ErrPayloadTooLarge   = errors.New("frame: payload exceeds configured max_message_size")
	ErrPayloadDecode     = errors.New("frame: payload failed to decode")
)

// DecodeError carries the frame that was (fully or partially) consumed
// even when decoding fails, so the caller can still reply on the same
// message_id when that is safe (unknown type errors only).
type DecodeError struct {
	Err   error
	Frame *Frame // non-nil when the frame was fully consumed despite the error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads exactly one frame from r. maxPayloadSize additionally
// bounds payload_length beyond the wire's own 65535-byte ceiling (§4.1).
func Decode(r *bufio.Reader, maxPayloadSize int) (*Frame, error) {
	start, err := r.ReadByte()
	if err != nil {
		return nil, err // connection-level EOF/read error, not a protocol error
	}
	if start != StartByte {
		return nil, &DecodeError{Err: ErrMalformedFrame}
	}

	header := make([]byte, 1+16+1+2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}

	msgType := MessageType(header[0])
	id, err := uuid.FromBytes(header[1:17])
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	payloadType := PayloadType(header[17])
	length := binary.BigEndian.Uint16(header[18:20])

	if int(length) > maxPayloadSize {
		// Drain and discard so the connection is left at a frame boundary,
		// even though the session is being torn down regardless (§4.1).
		io.CopyN(io.Discard, r, int64(length))
		return nil, &DecodeError{Err: ErrPayloadTooLarge}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}

	f := &Frame{MessageType: msgType, MessageID: id, PayloadType: payloadType, Payload: payload}

	// §4.1: unknown type/payload errors are reported with the frame
	// still fully consumed, so the caller may reply with an ERROR frame
	// referencing the same message_id and keep the session alive.
	if !msgType.Known() {
		return nil, &DecodeError{Err: ErrUnknownMessage, Frame: f}
	}
	if !payloadType.Known() {
		return nil, &DecodeError{Err: ErrUnknownPayload, Frame: f}
	}

	return f, nil
}

// Encode writes f to w in the wire format. It refuses to emit a frame
// whose payload exceeds the 2-byte length field (§4.1).
func Encode(w *bufio.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadLength {
		return ErrPayloadTooLarge
	}

	header := make([]byte, 1+1+16+1+2)
	header[0] = StartByte
	header[1] = byte(f.MessageType)
	idBytes, err := f.MessageID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("frame: marshal message_id: %w", err)
	}
	copy(header[2:18], idBytes)
	header[18] = byte(f.PayloadType)
	binary.BigEndian.PutUint16(header[19:21], uint16(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(f.Payload); err != nil {
		return err
	}
	return nil
}

// NewMessageID mints a fresh 128-bit message identifier.
func NewMessageID() uuid.UUID { return uuid.New() }
