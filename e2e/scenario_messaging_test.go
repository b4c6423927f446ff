package e2e

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type testMessagingSuite struct {
	BaseHubSuite
}

func TestMessagingSuite(t *testing.T) {
	suite.Run(t, &testMessagingSuite{})
}

type messagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	MessageType    string `json:"messageType"`
	Content        string `json:"content"`
}

type statusPayload struct {
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (s *testMessagingSuite) TestFullMessagingFlow() {
	s.SeedConversation("conv-1", "alice", "bob")

	alice := s.NewClient("alice")
	bob := s.NewClient("bob")

	var status statusPayload
	s.Run("Step 0: Alice sees Bob come online", func() {
		alice.Expect("user_status", &status)
		s.Require().Equal("bob", status.Username)
		s.Require().True(status.IsOnline)
	})

	alice.Send("join_conversation", map[string]any{"conversationId": "conv-1"})
	bob.Send("join_conversation", map[string]any{"conversationId": "conv-1"})

	var ack, delivered messagePayload
	s.Run("Step 1: Send, ack and fan-out", func() {
		alice.Send("send_message", map[string]any{
			"conversationId": "conv-1",
			"content":        "hello from the badger",
		})

		// The sender is acked first, then receives the room copy
		alice.Expect("message_sent", &ack)
		s.Require().NotEmpty(ack.ID)
		s.Require().Equal("alice", ack.SenderID)
		s.Require().Equal("text", ack.MessageType)

		var echo messagePayload
		alice.Expect("new_message", &echo)
		s.Require().Equal(ack.ID, echo.ID)

		bob.Expect("new_message", &delivered)
		s.Require().Equal(ack.ID, delivered.ID)
	})

	s.Run("Step 2: Forbidden words arrive censored everywhere", func() {
		s.Require().Equal("hello from the ******", ack.Content)
		s.Require().Equal("hello from the ******", delivered.Content)
	})

	s.Run("Step 3: Typing indicator reaches the room, not the sender", func() {
		alice.Send("typing", map[string]any{"conversationId": "conv-1", "isTyping": true})

		var typing struct {
			Username string `json:"username"`
			IsTyping bool   `json:"isTyping"`
		}
		bob.Expect("typing", &typing)
		s.Require().Equal("alice", typing.Username)
		s.Require().True(typing.IsTyping)
	})

	s.Run("Step 4: Read receipt is broadcast", func() {
		bob.Send("mark_read", map[string]any{
			"conversationId": "conv-1",
			"upToMessageId":  ack.ID,
		})

		var read struct {
			Username      string `json:"username"`
			UpToMessageID string `json:"upToMessageId"`
		}
		alice.Expect("messages_read", &read)
		s.Require().Equal("bob", read.Username)
		s.Require().Equal(ack.ID, read.UpToMessageID)
		// The sender of the receipt hears it too
		bob.Expect("messages_read", &read)
	})
}

func (s *testMessagingSuite) TestNonMemberIsRejected() {
	s.SeedConversation("conv-1", "alice", "bob")

	alice := s.NewClient("alice")
	carol := s.NewClient("carol")
	alice.Expect("user_status", nil)

	alice.Send("join_conversation", map[string]any{"conversationId": "conv-1"})

	carol.Send("send_message", map[string]any{
		"conversationId": "conv-1",
		"content":        "let me in",
	})

	var failure errorPayload
	carol.Expect("error", &failure)
	s.Require().Equal("NOT_MEMBER", failure.Code)

	// Nothing leaked into the room
	alice.ExpectSilence(silenceWindow)
}

func (s *testMessagingSuite) TestOfflineMemberIsAutoJoinedOnReconnect() {
	s.SeedConversation("conv-1", "alice", "bob")

	alice := s.NewClient("alice")
	alice.Send("join_conversation", map[string]any{"conversationId": "conv-1"})

	// Bob connects but never joins the room cache
	bob := s.NewClient("bob")
	alice.Expect("user_status", nil)

	alice.Send("send_message", map[string]any{
		"conversationId": "conv-1",
		"content":        "are you there?",
	})
	alice.Expect("message_sent", nil)
	alice.Expect("new_message", nil)

	// Authoritative membership pulled him in anyway
	var delivered messagePayload
	bob.Expect("new_message", &delivered)
	s.Require().Equal("are you there?", delivered.Content)
}

func (s *testMessagingSuite) TestEveryDeviceGetsExactlyOneCopy() {
	s.SeedConversation("conv-1", "alice", "carol")

	alice := s.NewClient("alice")
	carol1 := s.NewClient("carol")
	alice.Expect("user_status", nil)

	// Second device binds silently under the same identity
	carol2 := s.NewClient("carol")

	alice.Send("join_conversation", map[string]any{"conversationId": "conv-1"})
	carol1.Send("join_conversation", map[string]any{"conversationId": "conv-1"})
	carol2.Send("join_conversation", map[string]any{"conversationId": "conv-1"})

	alice.Send("send_message", map[string]any{
		"conversationId": "conv-1",
		"content":        "one for each screen",
	})
	alice.Expect("message_sent", nil)
	alice.Expect("new_message", nil)

	var first, second messagePayload
	carol1.Expect("new_message", &first)
	carol2.Expect("new_message", &second)
	s.Require().Equal(first.ID, second.ID)
	s.Require().Equal("one for each screen", first.Content)

	// One copy per connection, never two
	carol1.ExpectSilence(silenceWindow)
	carol2.ExpectSilence(silenceWindow)
}
