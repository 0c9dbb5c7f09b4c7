// scheduler.go wires reply-sent and message-arrival events to the session
// and timer tables and drives the decision gate. Table locks are held only
// for map mutations; the decision call runs outside both lock domains.
package attention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Defaults for Config fields left zero.
const (
	DefaultSessionTTL      = 120 * time.Second
	DefaultInterjectDelay  = 8 * time.Second
	DefaultDecisionTimeout = 60 * time.Second
)

// Config controls the scheduler's timing and gating behavior. All fields
// are read-only after New.
type Config struct {
	// SessionTTL is how long an immersive session stays armed.
	SessionTTL time.Duration

	// InterjectDelay is the proactive debounce window.
	InterjectDelay time.Duration

	// BufferCap bounds the per-group transcript buffer.
	BufferCap int

	// CommandPrefixes lists prefixes that mark a message as a host command.
	// Commands never count as follow-ups or buffer content.
	CommandPrefixes []string

	// RearmAfterInterject restarts the group timer after a successful
	// interjection, sustaining a conversational burst. Off by default.
	RearmAfterInterject bool

	// DecisionTimeout bounds one decision call.
	DecisionTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.SessionTTL <= 0 {
		out.SessionTTL = DefaultSessionTTL
	}
	if out.InterjectDelay <= 0 {
		out.InterjectDelay = DefaultInterjectDelay
	}
	if out.BufferCap <= 0 {
		out.BufferCap = DefaultBufferCap
	}
	if out.DecisionTimeout <= 0 {
		out.DecisionTimeout = DefaultDecisionTimeout
	}
	if out.CommandPrefixes == nil {
		out.CommandPrefixes = []string{"/"}
	}
	return out
}

// Deps are the external collaborators the scheduler drives. History and
// Personas may be nil; their lookups then degrade to empty context. A nil
// Model makes every firing a logged no-op. Outbound must be set.
type Deps struct {
	History  HistorySource
	Personas PersonaResolver
	Model    ChatModel
	Outbound Outbound
}

// Scheduler coordinates immersive sessions and proactive timers for a
// stream of group-chat events. One instance serves all groups.
type Scheduler struct {
	cfg      Config
	sessions *SessionTable
	timers   *TimerTable
	gate     *Gate

	history  HistorySource
	personas PersonaResolver
	outbound Outbound

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Shutdown must be called to release the tables.
func New(cfg Config, deps Deps, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		sessions: NewSessionTable(logger),
		timers:   NewTimerTable(cfg.BufferCap, logger),
		gate:     NewGate(deps.Model, logger),
		history:  deps.History,
		personas: deps.Personas,
		outbound: deps.Outbound,
		logger:   logger.With("component", "scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnReplySent handles a reply-sent notification: arms an immersive session
// for the replied-to user and restarts the group's proactive timer. The two
// effects are independent; neither aborts the other.
func (s *Scheduler) OnReplySent(ctx context.Context, evt ReplyEvent) {
	if s.ctx.Err() != nil || evt.Private || evt.GroupID == "" {
		return
	}

	snapshot := s.snapshot(ctx, evt.Origin)

	if evt.UserID != "" {
		key := SessionKey{GroupID: evt.GroupID, UserID: evt.UserID}
		s.sessions.Arm(key, snapshot, s.cfg.SessionTTL)
	}

	s.timers.Restart(evt.GroupID, evt.Origin, s.cfg.InterjectDelay, s.onTimerFire)
}

// OnMessage handles one incoming group message. Commands invalidate any
// live session for the sender; a matching session claims the turn for the
// follow-up path; otherwise the message is buffered for the proactive path,
// best effort.
func (s *Scheduler) OnMessage(ctx context.Context, evt MessageEvent) {
	if s.ctx.Err() != nil || evt.Private || evt.GroupID == "" {
		return
	}
	if evt.SenderID == "" || evt.SenderID == evt.SelfID {
		return
	}

	key := SessionKey{GroupID: evt.GroupID, UserID: evt.SenderID}

	if s.isCommand(evt.Text) {
		s.sessions.Invalidate(key)
		return
	}

	if snapshot, ok := s.sessions.TryConsume(key); ok {
		// The turn belongs to the immersive path; the pending proactive
		// window for this group is void. The decision call runs off this
		// goroutine so one group's follow-up never stalls event handling
		// for the others.
		s.timers.Cancel(evt.GroupID)
		go s.runFollowUp(ctx, evt, snapshot)
		return
	}

	s.timers.TryAppend(evt.GroupID, evt.SenderID, formatLine(evt))
}

// Shutdown cancels every live session and timer and stops in-flight
// decision calls.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.sessions.Clear()
	s.timers.CancelAll()
	s.logger.Info("attention scheduler stopped")
}

// ---------- Follow-up path ----------

func (s *Scheduler) runFollowUp(ctx context.Context, evt MessageEvent, snapshot Snapshot) {
	ctx, cancel := s.decisionContext(ctx)
	defer cancel()

	decision, err := s.gate.Decide(ctx, Request{
		Mode:         ModeFollowUp,
		GroupID:      evt.GroupID,
		Message:      evt.Text,
		Snapshot:     snapshot,
		SystemPrompt: s.resolvePersona(ctx, snapshot.PersonaID),
	})
	if err != nil {
		s.logDecisionFailure("follow-up", evt.GroupID, err)
		return
	}
	if !decision.ShouldReply || decision.Content == "" {
		return
	}

	if err := s.outbound.SendReply(ctx, evt.Origin, decision.Content); err != nil {
		s.logger.Error("follow-up delivery failed",
			"group", evt.GroupID, "error", err)
		return
	}

	if s.history != nil {
		// An empty conversation id makes the store start a fresh
		// conversation for this origin.
		if err := s.history.AppendExchange(ctx, evt.Origin, snapshot.ConversationID, evt.Text, decision.Content); err != nil {
			s.logger.Warn("failed to record follow-up exchange",
				"group", evt.GroupID, "error", err)
		}
	}

	s.logger.Info("follow-up reply sent", "group", evt.GroupID, "user", evt.SenderID)
}

// ---------- Interjection path ----------

// onTimerFire runs on a proactive timer's natural expiry. The token check
// in DrainIfCurrent makes a superseded firing a no-op.
func (s *Scheduler) onTimerFire(groupID string, token uint64) {
	transcript, ok := s.timers.DrainIfCurrent(groupID, token)
	if !ok {
		return
	}
	if len(transcript.Lines) == 0 {
		s.logger.Debug("no traffic during proactive window", "group", groupID)
		return
	}

	ctx, cancel := s.decisionContext(s.ctx)
	defer cancel()

	snapshot := s.snapshot(ctx, transcript.Origin)

	decision, err := s.gate.Decide(ctx, Request{
		Mode:         ModeInterjection,
		GroupID:      groupID,
		Transcript:   transcript.Lines,
		Snapshot:     snapshot,
		SystemPrompt: s.resolvePersona(ctx, snapshot.PersonaID),
	})
	if err != nil {
		s.logDecisionFailure("interjection", groupID, err)
		return
	}
	if !decision.ShouldReply || decision.Content == "" {
		return
	}

	if err := s.outbound.SendUnprompted(ctx, transcript.Origin, transcript.LastSenderID, decision.Content); err != nil {
		s.logger.Error("interjection delivery failed",
			"group", groupID, "error", err)
		return
	}

	s.logger.Info("interjection sent",
		"group", groupID, "lines", len(transcript.Lines))

	// Explicit opt-in re-arm; goes through the same cancellation-safe
	// Restart as any other start.
	if s.cfg.RearmAfterInterject && s.ctx.Err() == nil {
		s.timers.Restart(groupID, transcript.Origin, s.cfg.InterjectDelay, s.onTimerFire)
	}
}

// ---------- Helpers ----------

// snapshot captures the current conversation context for an origin. Lookup
// failures degrade to an empty snapshot and never abort the turn.
func (s *Scheduler) snapshot(ctx context.Context, origin string) Snapshot {
	if s.history == nil {
		return Snapshot{}
	}

	id, ok, err := s.history.CurrentConversationID(ctx, origin)
	if err != nil {
		s.logger.Warn("history lookup failed",
			"origin", origin, "error", fmt.Errorf("%w: %w", ErrHistoryLookup, err))
		return Snapshot{}
	}
	if !ok {
		return Snapshot{}
	}

	snapshot, err := s.history.Conversation(ctx, origin, id)
	if err != nil {
		s.logger.Warn("history lookup failed",
			"origin", origin, "error", fmt.Errorf("%w: %w", ErrHistoryLookup, err))
		return Snapshot{}
	}
	snapshot.ConversationID = id
	return snapshot
}

func (s *Scheduler) resolvePersona(ctx context.Context, personaID string) string {
	if s.personas == nil {
		return ""
	}
	prompt, err := s.personas.ResolveSystemPrompt(ctx, personaID)
	if err != nil {
		s.logger.Warn("persona resolution failed",
			"persona", personaID, "error", err)
		return ""
	}
	return prompt
}

func (s *Scheduler) decisionContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil || parent.Err() != nil {
		parent = s.ctx
	}
	return context.WithTimeout(parent, s.cfg.DecisionTimeout)
}

func (s *Scheduler) logDecisionFailure(mode, groupID string, err error) {
	switch {
	case errors.Is(err, ErrDecisionParse):
		s.logger.Warn("decision output not parseable, treating as no reply",
			"mode", mode, "group", groupID)
	case errors.Is(err, ErrUpstreamUnavailable):
		s.logger.Warn("no chat model available, skipping firing",
			"mode", mode, "group", groupID)
	case errors.Is(err, context.Canceled):
		// Expected during shutdown.
	default:
		s.logger.Error("decision call failed",
			"mode", mode, "group", groupID, "error", err)
	}
}

func (s *Scheduler) isCommand(text string) bool {
	text = strings.TrimSpace(text)
	for _, prefix := range s.cfg.CommandPrefixes {
		if prefix != "" && strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// formatLine renders one transcript entry in "Name(id): text" form.
func formatLine(evt MessageEvent) string {
	return fmt.Sprintf("%s(%s): %s", evt.SenderName, evt.SenderID, evt.Text)
}
