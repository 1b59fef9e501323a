package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saitejavellanki/mathres/internal/extract"
	"github.com/saitejavellanki/mathres/internal/llmcall"
	"github.com/saitejavellanki/mathres/internal/prompts"
	"github.com/saitejavellanki/mathres/internal/providers"
)

// Agent is one step of the crew: a system prompt, a user prompt template,
// an LLM, and the record kind its output is recovered into.
type Agent struct {
	Name      string
	SystemKey string
	UserKey   string
	Kind      extract.SchemaKind
	Client    providers.LLMClient
}

// AgentResult holds the outcome of an agent step.
type AgentResult struct {
	Agent    string               `json:"agent"`
	Records  []extract.Record     `json:"-"`
	JSON     string               `json:"-"`
	Strategy extract.Strategy     `json:"strategy"`
	Usage    providers.ChatResult `json:"-"`

	ExecutionTime time.Duration `json:"execution_time"`
}

// runEnv carries the per-run collaborators an agent step needs.
type runEnv struct {
	prompts   *prompts.Resolver
	extractor *extract.Extractor
	recorder  *llmcall.Recorder
	call      llmcall.RecordOptions // RunID, SubjectID, ScriptID
	logger    *slog.Logger
}

// run renders the prompts for the run's subject, calls the model, and
// recovers records from its reply. The call is recorded when env has a
// recorder.
func (a *Agent) run(ctx context.Context, env runEnv, data any) (*AgentResult, error) {
	start := time.Now()
	res, subjectID := env.prompts, env.call.SubjectID

	system, err := res.Render(ctx, a.SystemKey, subjectID, data)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", a.Name, err)
	}
	user, err := res.Render(ctx, a.UserKey, subjectID, data)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", a.Name, err)
	}

	reply, err := a.Client.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			providers.SystemMessage(system),
			providers.UserMessage(user),
		},
	})
	opts := env.call
	opts.Agent = a.Name
	opts.PromptKey = a.SystemKey
	opts.PromptHash = prompts.HashText(system)
	if err != nil {
		env.recorder.RecordCall(llmcall.FromError(a.Client.Name(), time.Since(start), err, opts))
		return nil, fmt.Errorf("%s agent: %w", a.Name, err)
	}
	env.recorder.Record(reply, opts)

	out := env.extractor.Extract(reply.Content, a.Kind)
	encoded, err := extract.Encode(out.Records)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", a.Name, err)
	}

	env.logger.Info("agent finished",
		"agent", a.Name,
		"provider", a.Client.Name(),
		"strategy", string(out.Strategy),
		"records", len(out.Records),
		"prompt_tokens", reply.PromptTokens,
		"completion_tokens", reply.CompletionTokens,
		"duration", time.Since(start))

	return &AgentResult{
		Agent:         a.Name,
		Records:       out.Records,
		JSON:          encoded,
		Strategy:      out.Strategy,
		Usage:         *reply,
		ExecutionTime: time.Since(start),
	}, nil
}
