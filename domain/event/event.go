// Package event defines the domain events delivered to connected
// clients. Each event knows its wire name; the transport layer only
// wraps it in the protocol envelope.
package event

import (
	"time"

	"github.com/google/uuid"

	"live-hub/domain"
	"live-hub/domain/call"
)

type DomainEvent interface {
	EventName() string
}

// UserStatus is broadcast when an identity comes online (first bind)
// or goes offline (last unbind).
type UserStatus struct {
	Identity domain.Identity `json:"username"`
	IsOnline bool            `json:"isOnline"`
}

func (UserStatus) EventName() string { return "user_status" }

// MessagePayload is the shared body of the sender ack and the fan-out
// event. It carries the server-assigned id and timestamp.
type MessagePayload struct {
	ID           uuid.UUID             `json:"id"`
	Conversation domain.ConversationID `json:"conversationId"`
	Sender       domain.Identity       `json:"senderId"`
	Type         string                `json:"messageType"`
	Content      string                `json:"content"`
	ReplyTo      *uuid.UUID            `json:"replyToMessageId,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

func FromMessage(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:           m.ID,
		Conversation: m.Conversation,
		Sender:       m.Sender,
		Type:         m.Type,
		Content:      m.Content,
		ReplyTo:      m.ReplyTo,
		CreatedAt:    m.CreatedAt,
	}
}

// MessageSent is the delivery confirmation sent only to the originating
// connection.
type MessageSent struct {
	MessagePayload
}

func (MessageSent) EventName() string { return "message_sent" }

// NewMessage is fanned out to every member connection of a conversation.
type NewMessage struct {
	MessagePayload
}

func (NewMessage) EventName() string { return "new_message" }

type Typing struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"username"`
	IsTyping     bool                  `json:"isTyping"`
}

func (Typing) EventName() string { return "typing" }

// MessagesRead broadcasts a read watermark for one identity in one
// conversation.
type MessagesRead struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"username"`
	UpTo         *uuid.UUID            `json:"upToMessageId,omitempty"`
}

func (MessagesRead) EventName() string { return "messages_read" }

// Heartbeat is the server keep-alive probe. No payload.
type Heartbeat struct{}

func (Heartbeat) EventName() string { return "heartbeat" }

type IncomingCall struct {
	CallID   string          `json:"callId"`
	Caller   domain.Identity `json:"callerId"`
	Receiver domain.Identity `json:"receiverId"`
	CallType call.Type       `json:"callType"`
}

func (IncomingCall) EventName() string { return "incoming_call" }

type CallAccepted struct {
	CallID     string          `json:"callId"`
	AcceptedBy domain.Identity `json:"acceptedBy"`
}

func (CallAccepted) EventName() string { return "call_accepted" }

type CallRejected struct {
	CallID     string          `json:"callId"`
	RejectedBy domain.Identity `json:"rejectedBy"`
}

func (CallRejected) EventName() string { return "call_rejected" }

type CallEnded struct {
	CallID  string          `json:"callId"`
	EndedBy domain.Identity `json:"endedBy"`
}

func (CallEnded) EventName() string { return "call_ended" }

type UpgradeToVideo struct {
	CallID string `json:"callId"`
}

func (UpgradeToVideo) EventName() string { return "upgrade_to_video" }

type VideoUpgradeAccepted struct {
	CallID string `json:"callId"`
}

func (VideoUpgradeAccepted) EventName() string { return "video_upgrade_accepted" }

type CallTimeout struct {
	CallID string `json:"callId"`
}

func (CallTimeout) EventName() string { return "call_timeout" }

// Error is surfaced to the single connection whose event failed. Code is
// machine-readable so clients can branch without parsing the message.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (Error) EventName() string { return "error" }
