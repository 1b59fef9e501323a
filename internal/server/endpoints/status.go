package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server        string          `json:"server"`
	Pipeline      string          `json:"pipeline"`
	PersistTarget string          `json:"persist_target"`
	Providers     ProvidersStatus `json:"providers"`
	Store         StoreStatus     `json:"store"`
	Queue         QueueStatus     `json:"queue"`
}

// ProvidersStatus shows registered LLM providers and the agent assignment.
type ProvidersStatus struct {
	LLM         []string `json:"llm"`
	Restructure string   `json:"restructure"`
	Marking     string   `json:"marking"`
}

// StoreStatus shows the local result store.
type StoreStatus struct {
	Driver string `json:"driver"`
	Health string `json:"health"`
}

// QueueStatus shows the job queue.
type QueueStatus struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key,omitempty"`
	Depth   int64  `json:"depth"`
	Health  string `json:"health"`
}

// StatusEndpoint handles GET /mathres/status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Server status
//	@Tags		service
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/mathres/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Server:   "running",
		Pipeline: "unavailable",
		Store:    StoreStatus{Driver: "none", Health: "disabled"},
		Queue:    QueueStatus{Health: "disabled"},
	}

	if cfg := svcctx.ConfigFrom(ctx); cfg != nil {
		resp.PersistTarget = cfg.Persist.Target
		resp.Providers.Restructure = cfg.RestructureProviderName()
		resp.Providers.Marking = cfg.MarkingProviderName()
		resp.Store.Driver = cfg.Store.Driver
	}
	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Providers.LLM = registry.ListLLM()
	}
	if svcctx.RunnerFrom(ctx) != nil {
		resp.Pipeline = "ready"
	}

	if st := svcctx.StoreFrom(ctx); st != nil {
		resp.Store.Health = "healthy"
		if err := st.Ping(ctx); err != nil {
			resp.Store.Health = "unhealthy"
		}
	}

	if q := svcctx.QueueFrom(ctx); q != nil {
		resp.Queue.Enabled = true
		resp.Queue.Key = q.Key()
		resp.Queue.Health = "healthy"
		depth, err := q.Depth(ctx)
		if err != nil {
			resp.Queue.Health = "unhealthy"
		}
		resp.Queue.Depth = depth
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), Prefix+"/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
