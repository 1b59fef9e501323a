// Package prompts manages the agent prompt templates.
//
// Embedded .tmpl files are the defaults. A subject may carry an override
// for any prompt key, read through an OverrideSource (the SQL store).
// Resolution order for a subject:
//  1. Subject override, if one exists
//  2. Embedded default
package prompts

import "context"

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: agents.restructure.system
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 of Text
}

// ResolvedPrompt is the result of resolving a prompt for a subject.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"`
	Hash       string   `json:"hash"`
}

// OverrideSource looks up subject-level prompt overrides. It returns
// ("", nil) when no override exists.
type OverrideSource interface {
	PromptOverride(ctx context.Context, subjectID, key string) (string, error)
}
