package marking

import (
	_ "embed"

	"github.com/saitejavellanki/mathres/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

const (
	SystemPromptKey = "agents.marking.system"
	UserPromptKey   = "agents.marking.user"
)

// UserPromptData holds the template inputs for the user prompt.
type UserPromptData struct {
	QAJSON  string
	Rubrics string
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

// RegisterPrompts registers the marking prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{Key: SystemPromptKey, Text: systemPrompt, Description: "Marking agent system prompt"})
	r.Register(prompts.EmbeddedPrompt{Key: UserPromptKey, Text: userPromptTmpl, Description: "Marking agent user prompt template"})
}
