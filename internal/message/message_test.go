package message

import (
	"encoding/json"
	"testing"
)

func TestRegisterRoundTrip(t *testing.T) {
	want := Register{
		Version:      "1.0.0",
		ClientID:     "u1",
		AuthToken:    "t1",
		Capabilities: []string{"screen_share"},
	}

	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Register
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ClientID != want.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, want.ClientID)
	}
	if got.AuthToken != want.AuthToken {
		t.Errorf("AuthToken = %q, want %q", got.AuthToken, want.AuthToken)
	}
}

func TestRoomJoinAckIsCreateAckShape(t *testing.T) {
	ack := RoomCreateAck{
		Version: "1.0.0",
		Status:  200,
		RoomID:  "room-1",
		ConnectionInfo: ConnectionInfo{
			AnswerSDP: "v=0\r\n",
		},
	}
	var join RoomJoinAck = ack // compiles only because the alias shares the shape

	raw, err := json.Marshal(join)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["room_id"] != "room-1" {
		t.Errorf("room_id = %v, want room-1", decoded["room_id"])
	}
}

func TestPingAckEchoesTimestamp(t *testing.T) {
	ack := PingAck{Timestamp: 12345, ServerTime: 67890}
	raw, err := json.Marshal(ack)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got PingAck
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Timestamp != ack.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, ack.Timestamp)
	}
}
