package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/queue"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// EnqueueResponse acknowledges a queued restructure job.
type EnqueueResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	SubjectID string `json:"subject_id"`
	ScriptID  string `json:"script_id"`
	Queue     string `json:"queue"`
	Depth     int64  `json:"depth"`
}

// EnqueueEndpoint handles POST /mathres/restructure/{subject_id}/{script_id}/enqueue.
type EnqueueEndpoint struct{}

func (e *EnqueueEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/restructure/{subject_id}/{script_id}/enqueue", e.handler
}

func (e *EnqueueEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Queue a restructure job
//	@Description	Pushes a job onto the Redis queue for a mathres worker.
//	@Tags			restructure
//	@Produce		json
//	@Param			subject_id	path		string	true	"Subject ID"
//	@Param			script_id	path		string	true	"Script ID"
//	@Success		202			{object}	EnqueueResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/mathres/restructure/{subject_id}/{script_id}/enqueue [post]
func (e *EnqueueEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	job := queue.NewJob(r.PathValue("subject_id"), r.PathValue("script_id"))
	if err := q.Push(r.Context(), job); err != nil {
		svcctx.LoggerFrom(r.Context()).Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	depth, _ := q.Depth(r.Context())

	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		Status:    "queued",
		JobID:     job.JobID,
		SubjectID: job.SubjectID,
		ScriptID:  job.ScriptID,
		Queue:     q.Key(),
		Depth:     depth,
	})
}

func (e *EnqueueEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <subject_id> <script_id>",
		Short: "Queue a restructure job for a worker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := Prefix + "/restructure/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1]) + "/enqueue"
			var resp EnqueueResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
