// Package pipeline runs the restructure crew for one answer script: fetch
// the OCR text and rubric, restructure the script into question/answer
// records, award marks, and persist the formatted result.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saitejavellanki/mathres/internal/backend"
	"github.com/saitejavellanki/mathres/internal/extract"
	"github.com/saitejavellanki/mathres/internal/llmcall"
	"github.com/saitejavellanki/mathres/internal/prompts"
	"github.com/saitejavellanki/mathres/internal/prompts/marking"
	"github.com/saitejavellanki/mathres/internal/prompts/restructure"
	"github.com/saitejavellanki/mathres/internal/providers"
	"github.com/saitejavellanki/mathres/internal/store"
)

// Sentinel errors for the pipeline package.
var (
	ErrNoAnswerSheet = errors.New("no answer sheet")
	ErrNoRubrics     = errors.New("no rubrics")
)

// Persistence targets.
const (
	TargetBackend = "backend"
	TargetStore   = "store"
	TargetBoth    = "both"
	TargetNone    = "none"
)

// Source fetches the inputs of a run. *backend.Client implements it.
type Source interface {
	FetchAnswerSheet(ctx context.Context, scriptID string) (*backend.AnswerSheet, error)
	FetchCompareText(ctx context.Context, scriptID string) (*backend.CompareText, error)
	FetchRubrics(ctx context.Context, subjectID string) (string, error)
}

// RemoteSaver persists results to the backend. *backend.Client implements it.
type RemoteSaver interface {
	SaveResult(ctx context.Context, scriptID string, restructured any) (string, any, error)
}

// Config configures a Runner.
type Config struct {
	Source Source
	Remote RemoteSaver // Used for TargetBackend and TargetBoth
	Store  store.Store // Used for TargetStore and TargetBoth
	Target string

	RestructureClient providers.LLMClient
	MarkingClient     providers.LLMClient // Defaults to RestructureClient

	Prompts   *prompts.Resolver  // Defaults to the embedded prompts
	Extractor *extract.Extractor // Defaults to the zero Extractor
	Recorder  *llmcall.Recorder  // Optional; records every agent call
	Logger    *slog.Logger
}

// Runner executes restructure runs. It is safe for concurrent use.
type Runner struct {
	source Source
	remote RemoteSaver
	store  store.Store
	target string

	restructure *Agent
	marking     *Agent

	prompts   *prompts.Resolver
	extractor *extract.Extractor
	recorder  *llmcall.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner validates cfg and builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if cfg.RestructureClient == nil {
		return nil, errors.New("pipeline: restructure LLM client is required")
	}
	if cfg.MarkingClient == nil {
		cfg.MarkingClient = cfg.RestructureClient
	}
	if cfg.Target == "" {
		cfg.Target = TargetBackend
	}
	switch cfg.Target {
	case TargetBackend:
		if cfg.Remote == nil {
			return nil, errors.New("pipeline: backend target needs a remote saver")
		}
	case TargetStore:
		if cfg.Store == nil {
			return nil, errors.New("pipeline: store target needs a store")
		}
	case TargetBoth:
		if cfg.Remote == nil || cfg.Store == nil {
			return nil, errors.New("pipeline: both target needs a remote saver and a store")
		}
	case TargetNone:
	default:
		return nil, fmt.Errorf("pipeline: unknown persist target %q", cfg.Target)
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.NewResolver(nil, cfg.Logger)
	}
	restructure.RegisterPrompts(cfg.Prompts)
	marking.RegisterPrompts(cfg.Prompts)
	if cfg.Extractor == nil {
		cfg.Extractor = &extract.Extractor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		source: cfg.Source,
		remote: cfg.Remote,
		store:  cfg.Store,
		target: cfg.Target,
		restructure: &Agent{
			Name:      "question_restructure",
			SystemKey: restructure.SystemPromptKey,
			UserKey:   restructure.UserPromptKey,
			Kind:      extract.QA,
			Client:    cfg.RestructureClient,
		},
		marking: &Agent{
			Name:      "marking",
			SystemKey: marking.SystemPromptKey,
			UserKey:   marking.UserPromptKey,
			Kind:      extract.Marking,
			Client:    cfg.MarkingClient,
		},
		prompts:   cfg.Prompts,
		extractor: cfg.Extractor,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Outcome is the result of a run.
type Outcome struct {
	RunID     string     `json:"run_id"`
	SubjectID string     `json:"subject_id"`
	ScriptID  string     `json:"script_id"`
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Result    *Formatted `json:"result,omitempty"`
}

// inputs holds everything fetched before the agents run.
type inputs struct {
	sheet   *backend.AnswerSheet
	rubrics string
	vlmdesc any
	mcq     any
}

// Run executes the pipeline for one script. A non-nil error means the run
// failed; the returned Outcome still carries the failure message.
// Persistence failures are recorded in the result and do not fail the run.
func (r *Runner) Run(ctx context.Context, subjectID, scriptID string) (*Outcome, error) {
	out := &Outcome{RunID: uuid.NewString(), SubjectID: subjectID, ScriptID: scriptID}
	logger := r.logger.With("run_id", out.RunID, "subject_id", subjectID, "script_id", scriptID)

	fail := func(err error) (*Outcome, error) {
		out.Message = "Error: " + err.Error()
		logger.Error("restructure failed", "error", err)
		return out, err
	}

	if subjectID == "" || scriptID == "" {
		return fail(errors.New("subject ID and script ID are required"))
	}

	in, err := r.fetch(ctx, subjectID, scriptID, logger)
	if err != nil {
		return fail(err)
	}
	logger.Info("inputs ready", "answer_sheet_bytes", len(in.sheet.Text), "pages", in.sheet.Pages)

	env := runEnv{
		prompts:   r.prompts,
		extractor: r.extractor,
		recorder:  r.recorder,
		call:      llmcall.RecordOptions{RunID: out.RunID, SubjectID: subjectID, ScriptID: scriptID},
		logger:    logger,
	}

	qa, err := r.restructure.run(ctx, env, restructure.UserPromptData{
		AnswerSheet: in.sheet.Text,
		Rubrics:     in.rubrics,
		VLMDesc:     compactJSON(in.vlmdesc),
		MCQ:         compactJSON(in.mcq),
	})
	if err != nil {
		return fail(err)
	}

	marks, err := r.marking.run(ctx, env, marking.UserPromptData{
		QAJSON:  qa.JSON,
		Rubrics: in.rubrics,
	})
	if err != nil {
		return fail(err)
	}

	result := buildFormatted(out.RunID, qa, marks, r.now())
	r.persist(ctx, subjectID, scriptID, result, logger)

	out.Success = true
	out.Result = result
	out.Message = fmt.Sprintf("Success: Restructure completed for script_id %s and %s in database", scriptID, result.DatabaseOperation)
	logger.Info("restructure completed", "pairs", result.TotalPairs, "database_operation", result.DatabaseOperation)
	return out, nil
}

// fetch loads the answer sheet and rubrics (required) and the compare-text
// data (optional) concurrently.
func (r *Runner) fetch(ctx context.Context, subjectID, scriptID string, logger *slog.Logger) (*inputs, error) {
	in := &inputs{vlmdesc: map[string]any{}, mcq: map[string]any{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sheet, err := r.source.FetchAnswerSheet(gctx, scriptID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoAnswerSheet, err)
		}
		in.sheet = sheet
		return nil
	})
	g.Go(func() error {
		rubrics, err := r.source.FetchRubrics(gctx, subjectID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNoRubrics, err)
		}
		in.rubrics = rubrics
		return nil
	})
	g.Go(func() error {
		ct, err := r.source.FetchCompareText(gctx, scriptID)
		if err != nil {
			logger.Warn("compare-text retrieval failed, continuing without it", "error", err)
			return nil
		}
		in.vlmdesc, in.mcq = ct.VLMDesc, ct.MCQ
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// persist writes result to the configured target(s) and records the
// operation on it.
func (r *Runner) persist(ctx context.Context, subjectID, scriptID string, result *Formatted, logger *slog.Logger) {
	switch r.target {
	case TargetNone:
		result.DatabaseOperation = "skipped"
		return
	case TargetStore:
		op, err := r.saveLocal(ctx, subjectID, scriptID, result)
		result.DatabaseOperation, result.DatabaseResult = opResult(op, map[string]any{"store": op}, err)
	case TargetBackend:
		op, body, err := r.remote.SaveResult(ctx, scriptID, result)
		result.DatabaseOperation, result.DatabaseResult = opResult(op, body, err)
	case TargetBoth:
		op, body, err := r.remote.SaveResult(ctx, scriptID, result)
		storeOp, storeErr := r.saveLocal(ctx, subjectID, scriptID, result)
		if storeErr != nil {
			logger.Error("local store save failed", "error", storeErr)
			storeOp = backend.OpFailed
		}
		result.DatabaseOperation, result.DatabaseResult = opResult(op, map[string]any{"backend": body, "store": storeOp}, err)
	}
	if result.DatabaseOperation == backend.OpFailed {
		logger.Error("saving result failed", "target", r.target, "result", result.DatabaseResult)
	}
}

func (r *Runner) saveLocal(ctx context.Context, subjectID, scriptID string, result *Formatted) (string, error) {
	doc, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return r.store.SaveResult(ctx, scriptID, subjectID, doc)
}

func opResult(op string, body any, err error) (string, any) {
	if err != nil {
		return backend.OpFailed, map[string]any{"error": err.Error()}
	}
	return op, body
}

// compactJSON renders optional context for the prompt. Empty values render
// as "".
func compactJSON(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	case []any:
		if len(t) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
