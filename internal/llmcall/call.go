// Package llmcall provides LLM call recording and querying for traceability.
// Every agent call is recorded with its prompt key, response, and metrics.
package llmcall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saitejavellanki/mathres/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	RunID     string `json:"run_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	ScriptID  string `json:"script_id,omitempty"`
	Agent     string `json:"agent"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty"` // SHA256 of the system prompt actually sent

	// Model info
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response string `json:"response"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	RunID     string
	SubjectID string
	ScriptID  string
	Agent     string

	// Prompt identification (required for traceability)
	PromptKey  string
	PromptHash string
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := newCall(opts)
	call.LatencyMs = int(result.ExecutionTime.Milliseconds())
	call.Provider = result.Provider
	call.Model = result.ModelUsed
	call.InputTokens = result.PromptTokens
	call.OutputTokens = result.CompletionTokens
	call.Response = result.Content
	call.Success = result.Success
	if !result.Success {
		call.Error = result.ErrorMessage
	}
	return call
}

// FromError creates a Call for a request that returned no result.
func FromError(provider string, latency time.Duration, err error, opts RecordOptions) *Call {
	call := newCall(opts)
	call.LatencyMs = int(latency.Milliseconds())
	call.Provider = provider
	if err != nil {
		call.Error = err.Error()
	}
	return call
}

func newCall(opts RecordOptions) *Call {
	return &Call{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		RunID:      opts.RunID,
		SubjectID:  opts.SubjectID,
		ScriptID:   opts.ScriptID,
		Agent:      opts.Agent,
		PromptKey:  opts.PromptKey,
		PromptHash: opts.PromptHash,
	}
}

// QueryFilter specifies filters for listing LLM calls. Zero fields match
// everything.
type QueryFilter struct {
	RunID     string
	ScriptID  string
	SubjectID string
	Agent     string
	Success   *bool
	Limit     int
	Offset    int
}

// Sink persists calls. *store.SQLStore implements it.
type Sink interface {
	InsertLLMCall(ctx context.Context, call *Call) error
}

// Querier lists recorded calls, newest first. *store.SQLStore implements it.
type Querier interface {
	ListLLMCalls(ctx context.Context, filter QueryFilter) ([]Call, error)
}
