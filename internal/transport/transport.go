// Package transport abstracts the chat platform the bot runs on.
//
// The bot core speaks in terms of messages, reactions, threads, and file
// attachments; a gateway adapter translates those to a concrete platform.
// The package ships a console gateway for local runs; production gateways
// implement the same interfaces out of tree.
package transport

import "context"

// MessageRef identifies a message within a channel.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Attachment is a file attached to a message.
type Attachment struct {
	Name string
	URL  string
}

// User is a chat platform user as seen by the bot.
type User struct {
	ID   string
	Name string

	// IsBot marks automated accounts. Reactions from bots never count as
	// reviewer feedback.
	IsBot bool

	// IsAdmin marks users holding the reviewer role.
	IsAdmin bool
}

// Message is an inbound or fetched chat message.
type Message struct {
	Ref         MessageRef
	Author      User
	Content     string
	Attachments []Attachment

	// ThreadID is set when the message was posted inside a thread.
	ThreadID string
}

// Reaction is an emoji placed on (or removed from) a message.
type Reaction struct {
	// Ref points at the message the emoji was placed on.
	Ref     MessageRef
	Reactor User
	Emoji   string

	// Reply carries free text the reviewer attached alongside the
	// reaction, when the platform supports it. May be empty.
	Reply string
}

// Transport is the outbound surface the bot uses to talk to the platform.
type Transport interface {
	// Send posts a text message and returns its reference.
	Send(ctx context.Context, channelID, text string) (MessageRef, error)

	// SendFile posts a file with an optional caption.
	SendFile(ctx context.Context, channelID, filename string, content []byte, caption string) (MessageRef, error)

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, ref MessageRef, text string) error

	// Delete removes a previously sent message.
	Delete(ctx context.Context, ref MessageRef) error

	// CreateThread opens a thread on a message and returns the thread's
	// channel ID.
	CreateThread(ctx context.Context, ref MessageRef, name string) (string, error)

	// FetchMessage retrieves a message by reference.
	FetchMessage(ctx context.Context, ref MessageRef) (Message, error)

	// ReadAttachment downloads an attachment's content.
	ReadAttachment(ctx context.Context, att Attachment) ([]byte, error)
}

// Handler receives inbound platform events. Any callback may be nil.
type Handler struct {
	OnMessage        func(ctx context.Context, msg Message)
	OnReactionAdd    func(ctx context.Context, r Reaction)
	OnReactionRemove func(ctx context.Context, r Reaction)
}

// Gateway is a Transport with an event loop attached.
type Gateway interface {
	Transport

	// Run pumps platform events into the handler until ctx is cancelled.
	Run(ctx context.Context, h Handler) error
}
