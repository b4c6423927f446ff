package ws

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the wire frame in both directions:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client -> server event names.
const (
	evJoinConversation  = "join_conversation"
	evLeaveConversation = "leave_conversation"
	evSendMessage       = "send_message"
	evTyping            = "typing"
	evMarkRead          = "mark_read"
	evHeartbeatAck      = "heartbeat_ack"
	evInitiateCall      = "initiate_call"
	evAcceptCall        = "accept_call"
	evRejectCall        = "reject_call"
	evEndCall           = "end_call"
	evUpgradeToVideo    = "upgrade_to_video"
	evVideoUpgradeOK    = "video_upgrade_accepted"
	evCallTimeout       = "call_timeout"
)

type joinConversationPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type sendMessagePayload struct {
	ConversationID   string     `json:"conversationId" validate:"required"`
	Content          string     `json:"content" validate:"required"`
	ReplyToMessageID *uuid.UUID `json:"replyToMessageId,omitempty"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

type markReadPayload struct {
	ConversationID string     `json:"conversationId" validate:"required"`
	UpToMessageID  *uuid.UUID `json:"upToMessageId,omitempty"`
}

type initiateCallPayload struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	CallType   string `json:"callType" validate:"required,oneof=audio video"`
}

// callRefPayload covers every post-initiate call event; only the id is
// required, the session already knows both parties.
type callRefPayload struct {
	CallID string `json:"callId" validate:"required"`
}
