package attention

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// scriptedModel returns a fixed completion and records the prompts it saw.
type scriptedModel struct {
	reply string
	err   error

	mu      sync.Mutex
	prompts []string
	systems []string
	history [][]Turn
}

func (m *scriptedModel) TextChat(_ context.Context, prompt string, history []Turn, systemPrompt string) (Completion, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, systemPrompt)
	m.history = append(m.history, history)
	m.mu.Unlock()

	if m.err != nil {
		return Completion{}, m.err
	}
	return Completion{Role: "assistant", Text: m.reply}, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func TestGate_Decide(t *testing.T) {
	t.Parallel()

	t.Run("fenced code block", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{reply: "Here is my verdict:\n```json\n{\"should_reply\": true, \"reply_content\": \"count me in\"}\n```"}
		gate := NewGate(model, nil)

		decision, err := gate.Decide(context.Background(), Request{Mode: ModeFollowUp, GroupID: "g1", Message: "hi"})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if !decision.ShouldReply || decision.Content != "count me in" {
			t.Errorf("decision = %+v", decision)
		}
	})

	t.Run("bare object in prose", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{reply: `Sure. {"should_reply": false, "reply_content": ""} That's all.`}
		gate := NewGate(model, nil)

		decision, err := gate.Decide(context.Background(), Request{Mode: ModeInterjection, GroupID: "g1"})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if decision.ShouldReply {
			t.Error("expected should_reply=false")
		}
	})

	t.Run("unparseable output", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{reply: "I would rather chat freely."}
		gate := NewGate(model, nil)

		_, err := gate.Decide(context.Background(), Request{Mode: ModeInterjection, GroupID: "g1"})
		if !errors.Is(err, ErrDecisionParse) {
			t.Errorf("err = %v, want ErrDecisionParse", err)
		}
	})

	t.Run("model failure wraps", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{err: fmt.Errorf("boom")}
		gate := NewGate(model, nil)

		_, err := gate.Decide(context.Background(), Request{Mode: ModeFollowUp, GroupID: "g1"})
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("err = %v, want wrapped model error", err)
		}
	})

	t.Run("nil model", func(t *testing.T) {
		t.Parallel()
		gate := NewGate(nil, nil)

		_, err := gate.Decide(context.Background(), Request{Mode: ModeFollowUp, GroupID: "g1"})
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
		}
	})
}

func TestGate_PromptTemplates(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{reply: `{"should_reply": false, "reply_content": ""}`}
	gate := NewGate(model, nil)

	_, err := gate.Decide(context.Background(), Request{
		Mode:         ModeInterjection,
		GroupID:      "g1",
		Transcript:   []string{"alice(u1): anyone tried the new build?", "bob(u2): not yet"},
		SystemPrompt: "persona prompt",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	_, err = gate.Decide(context.Background(), Request{
		Mode:    ModeFollowUp,
		GroupID: "g1",
		Message: "ok continue",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if got := model.calls(); got != 2 {
		t.Fatalf("model calls = %d, want 2", got)
	}
	if !strings.Contains(model.prompts[0], "alice(u1): anyone tried the new build?") {
		t.Error("interjection prompt must embed the transcript")
	}
	if model.systems[0] != "persona prompt" {
		t.Errorf("system prompt = %q", model.systems[0])
	}
	if !strings.Contains(model.prompts[1], "ok continue") {
		t.Error("follow-up prompt must embed the message")
	}
	for _, p := range model.prompts {
		if !strings.Contains(p, "should_reply") {
			t.Error("prompt must state the decision format")
		}
	}
}

func TestParseDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Decision
		wantErr bool
	}{
		{
			name:  "plain object",
			input: `{"should_reply": true, "reply_content": "yes"}`,
			want:  Decision{ShouldReply: true, Content: "yes"},
		},
		{
			name:  "fenced without language",
			input: "```\n{\"should_reply\": true, \"reply_content\": \"ok\"}\n```",
			want:  Decision{ShouldReply: true, Content: "ok"},
		},
		{
			name:  "widest braces win over nested text",
			input: `prefix {"should_reply": true, "reply_content": "a {quoted} brace"} suffix`,
			want:  Decision{ShouldReply: true, Content: "a {quoted} brace"},
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "no json at all",
			input:   "definitely not json",
			wantErr: true,
		},
		{
			name:    "braces but invalid json",
			input:   "{should_reply: yes}",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseDecision(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrDecisionParse) {
					t.Errorf("err = %v, want ErrDecisionParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
