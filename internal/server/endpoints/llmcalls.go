package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/llmcall"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// LLMCallsResponse lists recorded agent calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Count int            `json:"count"`
}

// LLMCallsEndpoint handles GET /mathres/llmcalls.
type LLMCallsEndpoint struct{}

func (e *LLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/llmcalls", e.handler
}

func (e *LLMCallsEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	List recorded LLM calls
//	@Tags		pipeline
//	@Produce	json
//	@Param		run_id		query		string	false	"Run ID"
//	@Param		script_id	query		string	false	"Script ID"
//	@Param		subject_id	query		string	false	"Subject ID"
//	@Param		agent		query		string	false	"Agent name"
//	@Param		success		query		bool	false	"Filter by outcome"
//	@Param		limit		query		int		false	"Max results (default 100)"
//	@Param		offset		query		int		false	"Offset"
//	@Success	200			{object}	LLMCallsResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	503			{object}	ErrorResponse
//	@Router		/mathres/llmcalls [get]
func (e *LLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q, ok := svcctx.StoreFrom(r.Context()).(llmcall.Querier)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "llm call history requires a local store")
		return
	}

	filter, err := parseCallFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := q.ListLLMCalls(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LLMCallsResponse{Calls: calls, Count: len(calls)})
}

func parseCallFilter(v url.Values) (llmcall.QueryFilter, error) {
	f := llmcall.QueryFilter{
		RunID:     v.Get("run_id"),
		ScriptID:  v.Get("script_id"),
		SubjectID: v.Get("subject_id"),
		Agent:     v.Get("agent"),
	}
	if s := v.Get("success"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return f, fmt.Errorf("invalid success: %q", s)
		}
		f.Success = &b
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if s := v.Get(name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return f, fmt.Errorf("invalid %s: %q", name, s)
			}
			*dst = n
		}
	}
	return f, nil
}

func (e *LLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		runID, scriptID, agent string
		limit                  int
	)
	cmd := &cobra.Command{
		Use:   "llmcalls",
		Short: "List recorded LLM calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			for k, v := range map[string]string{"run_id": runID, "script_id": scriptID, "agent": agent} {
				if v != "" {
					params.Set(k, v)
				}
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			path := Prefix + "/llmcalls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}
			var resp LLMCallsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Filter by run ID")
	cmd.Flags().StringVar(&scriptID, "script", "", "Filter by script ID")
	cmd.Flags().StringVar(&agent, "agent", "", "Filter by agent (question_restructure, marking)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}
