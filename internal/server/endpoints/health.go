package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/backend"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// Backend connectivity states.
const (
	BackendConnected    = "connected"
	BackendError        = "error"
	BackendDisconnected = "disconnected"
)

// HealthResponse reports connectivity to the results backend.
type HealthResponse struct {
	Status     string `json:"status"`
	Backend    string `json:"backend"`
	BackendURL string `json:"backend_url,omitempty"`
	Details    string `json:"details,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HealthEndpoint handles GET /mathres/health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Description	Checks connectivity to the results backend. Always answers 200; inspect status.
//	@Tags			service
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/mathres/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	client := svcctx.BackendFrom(r.Context())
	if client == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "unhealthy", Backend: BackendDisconnected, Error: "backend client not configured"})
		return
	}
	writeJSON(w, http.StatusOK, checkBackend(r, client))
}

func checkBackend(r *http.Request, client *backend.Client) HealthResponse {
	err := client.Ping(r.Context())
	if err == nil {
		return HealthResponse{Status: "healthy", Backend: BackendConnected, BackendURL: client.BaseURL()}
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return HealthResponse{Status: "unhealthy", Backend: BackendError, Details: se.Body}
	}
	return HealthResponse{Status: "unhealthy", Backend: BackendDisconnected, Error: err.Error()}
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server and backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), Prefix+"/health", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
