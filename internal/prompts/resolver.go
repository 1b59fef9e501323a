package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Resolver resolves prompts with subject-level overrides.
type Resolver struct {
	overrides OverrideSource
	embedded  map[string]EmbeddedPrompt
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewResolver creates a new prompt resolver. overrides may be nil.
func NewResolver(overrides OverrideSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		overrides: overrides,
		embedded:  make(map[string]EmbeddedPrompt),
		logger:    logger,
	}
}

// Register registers an embedded prompt.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}
	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the subject override for key if one exists, otherwise
// the embedded default. Override lookup failures fall through to the
// default.
func (r *Resolver) Resolve(ctx context.Context, key, subjectID string) (*ResolvedPrompt, error) {
	if subjectID != "" && r.overrides != nil {
		text, err := r.overrides.PromptOverride(ctx, subjectID, key)
		if err != nil {
			r.logger.Warn("failed to check prompt override", "key", key, "subject_id", subjectID, "error", err)
		} else if text != "" {
			return &ResolvedPrompt{
				Key:        key,
				Text:       text,
				Variables:  ExtractVariables(text),
				IsOverride: true,
				Hash:       HashText(text),
			}, nil
		}
	}

	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}
	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// Render resolves key for subjectID and executes it against data.
func (r *Resolver) Render(ctx context.Context, key, subjectID string, data any) (string, error) {
	p, err := r.Resolve(ctx, key, subjectID)
	if err != nil {
		return "", err
	}
	return Render(key, p.Text, data)
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
