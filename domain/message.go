// Package domain contains core concepts of the real-time hub.
// This file defines Message. Messages are immutable once persisted.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const MessageTypeText = "text"

// Message is a chat message as produced by the hub and persisted by the
// conversation store. ID and CreatedAt are server-assigned at insertion.
type Message struct {
	ID           uuid.UUID
	Conversation ConversationID
	Sender       Identity
	Type         string
	Content      string
	ReplyTo      *uuid.UUID
	CreatedAt    time.Time
}
