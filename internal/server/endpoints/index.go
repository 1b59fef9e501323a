package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
)

// IndexResponse describes the service.
type IndexResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

// IndexEndpoint handles GET /mathres/.
type IndexEndpoint struct{}

func (e *IndexEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{$}", e.handler
}

func (e *IndexEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Service information
//	@Tags		service
//	@Produce	json
//	@Success	200	{object}	IndexResponse
//	@Router		/mathres/ [get]
func (e *IndexEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Message: "Restructure API is running",
		Endpoints: map[string]string{
			"restructure":  Prefix + "/restructure/<subject_id>/<script_id>",
			"enqueue":      Prefix + "/restructure/<subject_id>/<script_id>/enqueue",
			"extract":      Prefix + "/extract",
			"health_check": Prefix + "/health",
			"status":       Prefix + "/status",
			"llm_calls":    Prefix + "/llmcalls",
			"swagger":      Prefix + "/swagger.json",
		},
	})
}

func (e *IndexEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show service information",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp IndexResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), Prefix+"/", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
