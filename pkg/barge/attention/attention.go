// Package attention implements the dual-mode attention scheduler that
// decides when the agent should speak in a group chat without being
// addressed. Two mechanisms cooperate:
//
//   - Immersive follow-up: after the agent replies to a user, that user's
//     very next message in the group (within a TTL) is treated as an
//     implicit continuation and evaluated for a follow-up reply.
//   - Proactive interjection: after the agent speaks in a group, a debounce
//     timer buffers subsequent group traffic; when it fires, the buffered
//     transcript is judged for an unprompted interjection.
//
// The package owns only the coordination state (sessions, timers, buffers).
// History, personas, the language model and outbound delivery are
// collaborators injected through the interfaces below.
package attention

import (
	"context"
	"time"
)

// MessageEvent is a single incoming chat message as seen by the scheduler.
type MessageEvent struct {
	// Origin is the unified conversation identifier used by the host
	// (e.g. "discord:123456") for history lookups and outbound delivery.
	Origin string

	// GroupID identifies the group chat the message arrived in.
	GroupID string

	// SenderID is the platform identifier of the message author.
	SenderID string

	// SenderName is the author's display name, used for transcript lines.
	SenderName string

	// SelfID is the agent's own identifier on this platform. Messages
	// authored by the agent itself are ignored.
	SelfID string

	// Text is the plain message content.
	Text string

	// Private indicates a direct message. The scheduler only operates on
	// group traffic; private messages are ignored.
	Private bool
}

// ReplyEvent notifies the scheduler that the agent just replied to a user.
type ReplyEvent struct {
	Origin  string
	GroupID string

	// UserID is the user the agent replied to; their next message becomes
	// an implicit follow-up.
	UserID string

	Private bool
}

// Turn is one prior user/assistant exchange from the history store.
type Turn struct {
	User      string
	Assistant string
	At        time.Time
}

// Snapshot is the conversation context captured when a session is armed.
// It is opaque to the tables; only the decision gate interprets it.
type Snapshot struct {
	ConversationID string
	PersonaID      string
	History        []Turn
}

// Completion is the raw result of a chat model call.
type Completion struct {
	Role string
	Text string
}

// HistorySource provides conversation history and persona association for
// an origin. Failures are tolerated: the scheduler degrades to an empty
// snapshot rather than dropping the turn.
type HistorySource interface {
	// CurrentConversationID returns the active conversation for an origin,
	// or ok=false when none exists yet.
	CurrentConversationID(ctx context.Context, origin string) (id string, ok bool, err error)

	// Conversation loads the recent turns and persona id for a conversation.
	Conversation(ctx context.Context, origin, id string) (Snapshot, error)

	// AppendExchange records a completed user/assistant exchange. An empty
	// id starts a new conversation for the origin.
	AppendExchange(ctx context.Context, origin, id, userMsg, assistantMsg string) error
}

// PersonaResolver resolves a persona id to its system prompt. An empty id
// resolves the default persona.
type PersonaResolver interface {
	ResolveSystemPrompt(ctx context.Context, personaID string) (string, error)
}

// ChatModel is the language model used for decision calls.
type ChatModel interface {
	TextChat(ctx context.Context, prompt string, history []Turn, systemPrompt string) (Completion, error)
}

// Outbound delivers accepted decisions back to the chat platform.
type Outbound interface {
	// SendReply delivers a direct follow-up reply on the conversation
	// identified by origin.
	SendReply(ctx context.Context, origin, content string) error

	// SendUnprompted delivers a proactive interjection, mentioning
	// mentionUserID when non-empty.
	SendUnprompted(ctx context.Context, origin, mentionUserID, content string) error
}
