package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound frame types.
const (
	typeJoinRoom     = "join_room"
	typeSendMessage  = "send_message"
	typeLeaveRoom    = "leave_room"
	typePing         = "ping"
	typeWebRTCOffer  = "webrtc_offer"
	typeWebRTCAnswer = "webrtc_answer"
	typeWebRTCICE    = "webrtc_ice_candidate"
)

// Outbound frame types.
const (
	typeRoomJoined  = "room_joined"
	typeMessage     = "message"
	typeUserJoined  = "user_joined"
	typeUserLeft    = "user_left"
	typePong        = "pong"
	typeError       = "error"
	typeRateLimited = "rate_limited"
)

// Error codes carried in error frames and, where applicable, close frames.
const (
	CodeBadRequest  = 4000
	CodeAuthFailed  = 4001
	CodeRateLimited = 4002
	CodeDenied      = 4003
	CodeNotFound    = 4004
	CodeInternal    = 4500
)

// MessageType is the closed set of message tags. Unknown tags are a
// decode error; an absent tag defaults to text.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

func parseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case "":
		return TypeText, nil
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return MessageType(s), nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// clientFrame is the single inbound shape; which fields are meaningful
// depends on Type.
type clientFrame struct {
	Type        string          `json:"type"`
	Room        string          `json:"room"`
	Content     string          `json:"content"`
	MessageType string          `json:"message_type"`
	Timestamp   *uint64         `json:"timestamp"`
	ToUserID    string          `json:"to_user_id"`
	Offer       json.RawMessage `json:"offer,omitempty"`
	Answer      json.RawMessage `json:"answer,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

type roomJoinedFrame struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type messageFrame struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Room        string    `json:"room"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// presenceFrame carries both user_joined and user_left.
type presenceFrame struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type pongFrame struct {
	Type      string  `json:"type"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

type rateLimitedFrame struct {
	Type       string `json:"type"`
	RetryAfter uint64 `json:"retry_after"`
}

// signalFrame relays a WebRTC payload verbatim with the sender identity
// attached.
type signalFrame struct {
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// encodeFrame marshals an outbound frame. The frame structs above cannot
// fail to marshal; a failure here is a programming error and yields nil,
// which the outbound path drops.
func encodeFrame(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
