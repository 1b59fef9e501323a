package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/pipeline"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// RestructureResponse is the outcome of a synchronous pipeline run.
type RestructureResponse struct {
	Status    string              `json:"status"`
	SubjectID string              `json:"subject_id"`
	ScriptID  string              `json:"script_id"`
	Message   string              `json:"message"`
	RunID     string              `json:"run_id,omitempty"`
	Result    *pipeline.Formatted `json:"result,omitempty"`
}

// RestructureEndpoint handles GET /mathres/restructure/{subject_id}/{script_id}.
type RestructureEndpoint struct{}

func (e *RestructureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/restructure/{subject_id}/{script_id}", e.handler
}

func (e *RestructureEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Restructure a script
//	@Description	Fetches the OCR text and rubric, runs the restructure and marking agents, and persists the result.
//	@Tags			restructure
//	@Produce		json
//	@Param			subject_id	path		string	true	"Subject ID"
//	@Param			script_id	path		string	true	"Script ID"
//	@Success		200			{object}	RestructureResponse
//	@Failure		400			{object}	RestructureResponse
//	@Failure		500			{object}	RestructureResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/mathres/restructure/{subject_id}/{script_id} [get]
func (e *RestructureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	subjectID, scriptID := r.PathValue("subject_id"), r.PathValue("script_id")
	if subjectID == "" || scriptID == "" {
		writeJSON(w, http.StatusBadRequest, RestructureResponse{
			Status:  "error",
			Message: "Subject ID and Script ID are required",
		})
		return
	}

	runner := svcctx.RunnerFrom(r.Context())
	if runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	svcctx.LoggerFrom(r.Context()).Info("processing restructure", "subject_id", subjectID, "script_id", scriptID)
	out, err := runner.Run(r.Context(), subjectID, scriptID)

	resp := RestructureResponse{
		Status:    "success",
		SubjectID: subjectID,
		ScriptID:  scriptID,
		Message:   out.Message,
		RunID:     out.RunID,
		Result:    out.Result,
	}
	status := http.StatusOK
	if err != nil {
		resp.Status = "error"
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (e *RestructureEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "restructure <subject_id> <script_id>",
		Short: "Run the restructure pipeline for one script",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := Prefix + "/restructure/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
			var resp RestructureResponse
			err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp)
			if resp.Status != "" {
				if outErr := api.Output(resp); outErr != nil {
					return outErr
				}
			}
			return err
		},
	}
}
