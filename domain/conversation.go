package domain

// ConversationID identifies a persisted conversation. The hub mirrors it
// as a real-time room; the membership cached in the room is advisory only,
// authoritative membership lives in the conversation store.
type ConversationID string

func (c ConversationID) String() string { return string(c) }
