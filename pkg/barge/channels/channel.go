// Package channels defines the interface between chat platforms and the
// attention scheduler. Each platform adapter translates its native events
// into the scheduler's message-arrival and reply-sent events and exposes a
// unified outbound surface.
package channels

import (
	"context"
	"fmt"

	"github.com/jholhewres/barge/pkg/barge/attention"
)

// EventKind discriminates the events a channel emits.
type EventKind int

const (
	// EventMessage is an incoming user message.
	EventMessage EventKind = iota

	// EventReplySent is the agent's own outgoing message, observed on the
	// platform. It drives session arming and timer restarts.
	EventReplySent
)

// Event is one platform occurrence relevant to the scheduler. Exactly one
// of Message/Reply is meaningful, selected by Kind.
type Event struct {
	Kind    EventKind
	Message attention.MessageEvent
	Reply   attention.ReplyEvent
}

// Channel is implemented by every platform adapter.
type Channel interface {
	// Name returns the platform identifier (e.g. "discord").
	Name() string

	// Connect establishes the platform connection and starts emitting
	// events.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. The event stream goes quiet but
	// stays open; platform handlers may still be in flight when it returns.
	Disconnect() error

	// Events returns the stream of scheduler-relevant events.
	Events() <-chan Event

	// IsConnected reports connection state.
	IsConnected() bool
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
