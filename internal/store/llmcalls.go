package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/saitejavellanki/mathres/internal/llmcall"
)

const defaultCallLimit = 100

const llmCallColumns = `id, ts, latency_ms, run_id, subject_id, script_id, agent, prompt_key, prompt_hash,
	provider, model, input_tokens, output_tokens, response, success, error`

// InsertLLMCall records one LLM call.
func (s *SQLStore) InsertLLMCall(ctx context.Context, c *llmcall.Call) error {
	if c == nil || c.ID == "" {
		return errors.New("llm call id is required")
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO llm_calls (`+llmCallColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Timestamp.UTC(), c.LatencyMs, c.RunID, c.SubjectID, c.ScriptID, c.Agent, c.PromptKey, c.PromptHash,
		c.Provider, c.Model, c.InputTokens, c.OutputTokens, c.Response, c.Success, c.Error)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// ListLLMCalls returns calls matching filter, newest first. Limit defaults
// to 100.
func (s *SQLStore) ListLLMCalls(ctx context.Context, f llmcall.QueryFilter) ([]llmcall.Call, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		conds = append(conds, col+" = ?")
		args = append(args, v)
	}
	if f.RunID != "" {
		add("run_id", f.RunID)
	}
	if f.ScriptID != "" {
		add("script_id", f.ScriptID)
	}
	if f.SubjectID != "" {
		add("subject_id", f.SubjectID)
	}
	if f.Agent != "" {
		add("agent", f.Agent)
	}
	if f.Success != nil {
		add("success", *f.Success)
	}

	query := `SELECT ` + llmCallColumns + ` FROM llm_calls`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultCallLimit
	}
	query += " ORDER BY ts DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list llm calls: %w", err)
	}
	defer rows.Close()

	calls := []llmcall.Call{}
	for rows.Next() {
		var c llmcall.Call
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.LatencyMs, &c.RunID, &c.SubjectID, &c.ScriptID, &c.Agent,
			&c.PromptKey, &c.PromptHash, &c.Provider, &c.Model, &c.InputTokens, &c.OutputTokens,
			&c.Response, &c.Success, &c.Error); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

var (
	_ llmcall.Sink    = (*SQLStore)(nil)
	_ llmcall.Querier = (*SQLStore)(nil)
)
