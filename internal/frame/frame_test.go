package frame

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := &Frame{
		MessageType: Register,
		MessageID:   NewMessageID(),
		PayloadType: PayloadJSON,
		Payload:     []byte(`{"client_id":"c-1"}`),
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := Encode(w, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := Decode(bufio.NewReader(&buf), MaxPayloadLength)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.MessageType != want.MessageType {
		t.Errorf("MessageType = %v, want %v", got.MessageType, want.MessageType)
	}
	if got.MessageID != want.MessageID {
		t.Errorf("MessageID = %v, want %v", got.MessageID, want.MessageID)
	}
	if got.PayloadType != want.PayloadType {
		t.Errorf("PayloadType = %v, want %v", got.PayloadType, want.PayloadType)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, want.Payload)
	}
}

func TestDecodeMalformedStartByte(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x00, 0x01, 0x02}))
	_, err := Decode(r, MaxPayloadLength)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecodeUnknownMessageTypeStillConsumesFrame(t *testing.T) {
	id := uuid.New()
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	f := &Frame{MessageType: MessageType(0x99), MessageID: id, PayloadType: PayloadJSON, Payload: []byte("{}")}
	if err := Encode(w, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	w.Flush()

	_, err := Decode(bufio.NewReader(&buf), MaxPayloadLength)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if !errors.Is(decErr, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", decErr.Err)
	}
	if decErr.Frame == nil {
		t.Fatal("expected frame to be carried through despite unknown type")
	}
	if decErr.Frame.MessageID != id {
		t.Errorf("carried frame message_id mismatch")
	}
}

func TestDecodeUnknownPayloadType(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	f := &Frame{MessageType: Ping, MessageID: uuid.New(), PayloadType: PayloadType(0xEE), Payload: nil}
	if err := Encode(w, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	w.Flush()

	_, err := Decode(bufio.NewReader(&buf), MaxPayloadLength)
	if !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("expected ErrUnknownPayload, got %v", err)
	}
}

func TestDecodePayloadTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	f := &Frame{MessageType: Ping, MessageID: uuid.New(), PayloadType: PayloadJSON, Payload: bytes.Repeat([]byte{'a'}, 100)}
	if err := Encode(w, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	w.Flush()

	_, err := Decode(bufio.NewReader(&buf), 10)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	f := &Frame{
		MessageType: Ping,
		MessageID:   NewMessageID(),
		PayloadType: PayloadBinary,
		Payload:     make([]byte, MaxPayloadLength+1),
	}
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := Encode(w, f); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
