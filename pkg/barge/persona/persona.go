// Package persona resolves persona ids to system prompts from a YAML
// catalog. Unknown ids fall back to the default persona so a stale persona
// reference never aborts a turn.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when no catalog is configured at all.
const DefaultSystemPrompt = "You are a considerate group-chat participant. " +
	"Only speak when you genuinely add something, and keep replies short."

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Default  string            `yaml:"default"`
	Personas map[string]string `yaml:"personas"`
}

// Resolver implements attention.PersonaResolver over a static catalog.
type Resolver struct {
	defaultPrompt string
	personas      map[string]string
	logger        *slog.Logger
}

// Load reads a persona catalog from path. An empty path yields a resolver
// that always returns the built-in default prompt.
func Load(path string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		defaultPrompt: DefaultSystemPrompt,
		personas:      map[string]string{},
		logger:        logger.With("component", "persona"),
	}
	if path == "" {
		return r, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}

	if file.Default != "" {
		r.defaultPrompt = file.Default
	}
	if file.Personas != nil {
		r.personas = file.Personas
	}

	r.logger.Info("persona catalog loaded", "personas", len(r.personas))
	return r, nil
}

// ResolveSystemPrompt returns the prompt for personaID, or the default when
// the id is empty or unknown.
func (r *Resolver) ResolveSystemPrompt(_ context.Context, personaID string) (string, error) {
	if personaID == "" {
		return r.defaultPrompt, nil
	}
	if prompt, ok := r.personas[personaID]; ok {
		return prompt, nil
	}

	r.logger.Warn("unknown persona, using default", "persona", personaID)
	return r.defaultPrompt, nil
}
