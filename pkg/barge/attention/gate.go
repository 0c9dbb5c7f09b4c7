// gate.go implements the decision gate: one external model call per firing,
// parsed into a structured should-reply verdict. Follow-up and interjection
// differ only in the prompt template and the context supplied; the control
// flow is identical.
package attention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Mode selects the decision prompt template.
type Mode int

const (
	// ModeFollowUp judges a single message that consumed an immersive
	// session.
	ModeFollowUp Mode = iota

	// ModeInterjection judges a drained group transcript.
	ModeInterjection
)

func (m Mode) String() string {
	if m == ModeFollowUp {
		return "follow-up"
	}
	return "interjection"
}

// Decision is the structured verdict returned by the model.
type Decision struct {
	ShouldReply bool   `json:"should_reply"`
	Content     string `json:"reply_content"`
}

// Request carries everything one decision call needs.
type Request struct {
	Mode    Mode
	GroupID string

	// Message is the consumed follow-up message (ModeFollowUp).
	Message string

	// Transcript is the drained buffer (ModeInterjection).
	Transcript []string

	// Snapshot is the prior conversation context, possibly empty.
	Snapshot Snapshot

	// SystemPrompt is the resolved persona prompt, possibly empty.
	SystemPrompt string
}

// Gate serializes decision calls per group and parses model output into a
// Decision. It never retries: a failed or unparseable call is reported as
// an error and the caller treats it as "no reply".
type Gate struct {
	model  ChatModel
	logger *slog.Logger

	// groupMu serializes in-flight decision calls per group so two firings
	// for the same group can never interleave. Entries are never removed;
	// the set of groups is small and long-lived.
	mu      sync.Mutex
	groupMu map[string]*sync.Mutex
}

// NewGate creates a gate around the given model. A nil model is allowed and
// makes every Decide return ErrUpstreamUnavailable.
func NewGate(model ChatModel, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		model:   model,
		logger:  logger.With("component", "gate"),
		groupMu: make(map[string]*sync.Mutex),
	}
}

// Decide runs one decision call and parses the verdict. The per-group lock
// is held across the model call; table locks are not.
func (g *Gate) Decide(ctx context.Context, req Request) (Decision, error) {
	if g.model == nil {
		return Decision{}, ErrUpstreamUnavailable
	}

	lock := g.lockFor(req.GroupID)
	lock.Lock()
	defer lock.Unlock()

	prompt := buildPrompt(req)

	completion, err := g.model.TextChat(ctx, prompt, req.Snapshot.History, req.SystemPrompt)
	if err != nil {
		return Decision{}, fmt.Errorf("decision call (%s): %w", req.Mode, err)
	}

	decision, err := parseDecision(completion.Text)
	if err != nil {
		g.logger.Warn("unparseable decision output",
			"mode", req.Mode.String(), "group", req.GroupID,
			"output_len", len(completion.Text))
		return Decision{}, err
	}

	g.logger.Debug("decision",
		"mode", req.Mode.String(), "group", req.GroupID,
		"should_reply", decision.ShouldReply)
	return decision, nil
}

func (g *Gate) lockFor(groupID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.groupMu[groupID]
	if !ok {
		lock = &sync.Mutex{}
		g.groupMu[groupID] = lock
	}
	return lock
}

// ---------- Prompt templates ----------

const decisionFormat = `Respond with exactly one JSON object and nothing else:
{
  "should_reply": boolean,
  "reply_content": "your reply text when should_reply is true, otherwise empty"
}`

func buildPrompt(req Request) string {
	var b strings.Builder

	switch req.Mode {
	case ModeFollowUp:
		b.WriteString("You just replied to this user and they answered right away. ")
		b.WriteString("Decide whether their message continues the conversation and deserves a reply.\n\n")
		b.WriteString("Their message:\n")
		b.WriteString(req.Message)
	case ModeInterjection:
		b.WriteString("You are observing a group chat you recently spoke in. ")
		b.WriteString("Read the messages sent since your last reply and decide whether ")
		b.WriteString("joining the discussion unprompted would be natural and useful.\n\n")
		b.WriteString("Recent messages:\n---\n")
		b.WriteString(strings.Join(req.Transcript, "\n"))
		b.WriteString("\n---")
	}

	b.WriteString("\n\n")
	b.WriteString(decisionFormat)
	return b.String()
}

// ---------- Output parsing ----------

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// parseDecision scans model output for a decision object: a fenced code
// block first, then the widest {...} substring. Anything else is
// ErrDecisionParse.
func parseDecision(text string) (Decision, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Decision{}, ErrDecisionParse
	}

	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		if d, err := unmarshalDecision(m[1]); err == nil {
			return d, nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if d, err := unmarshalDecision(text[start : end+1]); err == nil {
			return d, nil
		}
	}

	return Decision{}, ErrDecisionParse
}

func unmarshalDecision(s string) (Decision, error) {
	var d Decision
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &d); err != nil {
		return Decision{}, err
	}
	return d, nil
}
