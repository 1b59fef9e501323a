// Package restructure holds the prompts for the agent that splits an OCR'd
// answer script into question and answer records.
package restructure

import (
	_ "embed"

	"github.com/saitejavellanki/mathres/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

// Prompt keys
const (
	SystemPromptKey = "agents.restructure.system"
	UserPromptKey   = "agents.restructure.user"
)

// UserPromptData holds the template inputs for the user prompt.
type UserPromptData struct {
	AnswerSheet string
	Rubrics     string
	VLMDesc     string // JSON, empty when unavailable
	MCQ         string // JSON, empty when unavailable
}

// SystemPrompt returns the embedded system prompt.
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt renders the embedded user prompt.
func UserPrompt(data UserPromptData) string {
	out, err := prompts.Render(UserPromptKey, userPromptTmpl, data)
	if err != nil {
		return userPromptTmpl
	}
	return out
}

// RegisterPrompts registers the restructure prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Restructure agent system prompt - splits an answer script into question/answer records",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Restructure agent user prompt template",
	})
}
