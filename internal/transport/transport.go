// ABOUTME: Transport interface the bot speaks to its messaging channel through.
// ABOUTME: Conversations, outbound sends, and the inbound message callback.

package transport

import "context"

// Conversation is one open conversation with a recipient. Recipient is the
// peer's identity on the platform; Ref is the platform's conversation handle
// (the Matrix room ID) used for sends.
type Conversation struct {
	Recipient string
	Ref       string
}

// InboundMessage is one message received from a recipient.
type InboundMessage struct {
	Sender       string
	Content      string
	Conversation Conversation
}

// Handler processes one inbound message. Handlers run on their own goroutine
// so a slow handler can't stall the sync loop.
type Handler func(ctx context.Context, msg InboundMessage)

// Transport is the messaging collaborator. Message ordering and delivery
// guarantees belong to the platform, not the bot.
type Transport interface {
	// ListOpenConversations enumerates every conversation the bot is part of.
	ListOpenConversations(ctx context.Context) ([]Conversation, error)

	// Send delivers a text message into a conversation. The text may contain
	// markdown; implementations render it as the platform allows.
	Send(ctx context.Context, conv Conversation, text string) error

	// OnMessage registers the inbound handler. Must be called before Run.
	OnMessage(handler Handler)

	// Run connects and blocks until ctx is cancelled or the connection fails.
	Run(ctx context.Context) error
}
