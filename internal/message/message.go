// Package message defines the JSON payload shapes carried inside frames,
// one struct per message_type in the wire table (§6).
package message

// Connect is the legacy, optional admission payload preceding REGISTER
// (§9 open question: treated as optional; REGISTER alone suffices).
type Connect struct {
	ClientID  string `json:"client_id"`
	AuthToken string `json:"auth_token"`
}

type ConnectAck struct {
	Status            int    `json:"status"`
	SessionID         string `json:"session_id"`
	HeartbeatInterval int64  `json:"heartbeat_interval"` // seconds
}

type Disconnect struct {
	ClientID string `json:"client_id,omitempty"`
	Reason   string `json:"reason"`
}

// Ping doubles for the original's HEARTBEAT codepoint (§9: synonymous).
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type PingAck struct {
	Timestamp  int64 `json:"timestamp"`   // echoed verbatim from the request
	ServerTime int64 `json:"server_time"`
}

// Signal carries SIGNAL_OFFER, SIGNAL_ANSWER and SIGNAL_ICE_CANDIDATE
// alike; all three share the same passthrough shape (§4.5, §6).
type Signal struct {
	TargetClientID string          `json:"target_client_id"`
	SignalData     SignalDataUnion `json:"signal_data"`
}

// SignalDataUnion carries either an SDP description or an ICE candidate,
// whichever the wrapping message_type implies; exactly one of the two is
// populated. Left as raw JSON by the passthrough handler itself (§4.5:
// "the broker ... enqueues the same message ... on the target's writer",
// it never needs to parse signal_data to forward it).
type SignalDataUnion map[string]interface{}

type Register struct {
	Version      string                 `json:"version"`
	ClientID     string                 `json:"client_id"`
	AuthToken    string                 `json:"auth_token"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	RoomID       string                 `json:"room_id,omitempty"`
}

type RegisterAck struct {
	Version   string `json:"version"`
	Status    int    `json:"status"`
	Message   string `json:"message,omitempty"`
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

type Unregister struct {
	Version   string `json:"version"`
	ClientID  string `json:"client_id"`
	AuthToken string `json:"auth_token"`
}

type UnregisterAck struct {
	Version  string `json:"version"`
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	ClientID string `json:"client_id"`
}

// Role identifies which side of a room a client occupies (§3 Membership).
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

type RoomCreate struct {
	Version   string                 `json:"version"`
	ClientID  string                 `json:"client_id"`
	AuthToken string                 `json:"auth_token"`
	Role      Role                   `json:"role"`
	OfferSDP  string                 `json:"offer_sdp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ConnectionInfo is the provider-facing portion of a *_ACK reply, carrying
// whichever SDP direction and ICE state the operation produced.
type ConnectionInfo struct {
	AnswerSDP  string   `json:"answer_sdp,omitempty"`
	OfferSDP   string   `json:"offer_sdp,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

type RoomCreateAck struct {
	Version        string         `json:"version"`
	Status         int            `json:"status"`
	Message        string         `json:"message,omitempty"`
	RoomID         string         `json:"room_id"`
	SessionIDExt   string         `json:"session_id"`
	AppID          string         `json:"app_id"`
	StunURL        string         `json:"stun_url"`
	ConnectionInfo ConnectionInfo `json:"connection_info"`
}

type RoomJoin struct {
	Version   string                 `json:"version"`
	ClientID  string                 `json:"client_id"`
	AuthToken string                 `json:"auth_token"`
	RoomID    string                 `json:"room_id"`
	Role      Role                   `json:"role"`
	OfferSDP  string                 `json:"offer_sdp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RoomJoinAck shares CREATE_ACK's shape verbatim (§6: "same as CREATE_ACK").
type RoomJoinAck = RoomCreateAck

type RoomLeave struct {
	Version   string `json:"version"`
	ClientID  string `json:"client_id"`
	AuthToken string `json:"auth_token"`
	RoomID    string `json:"room_id"`
	Reason    string `json:"reason,omitempty"`
}

type RoomLeaveAck struct {
	Version  string `json:"version"`
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	RoomID   string `json:"room_id"`
	ClientID string `json:"client_id"`
}

type Error struct {
	ErrorCode    int                    `json:"error_code"`
	ErrorMessage string                 `json:"error_message"`
	Details      map[string]interface{} `json:"details,omitempty"`
}
