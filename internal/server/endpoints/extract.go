package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/extract"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// maxExtractBody bounds the raw agent output accepted per request.
const maxExtractBody = 4 << 20

// ExtractRequest is raw agent output to recover records from.
type ExtractRequest struct {
	RawOutput string `json:"raw_output"`
	Schema    string `json:"schema"`
}

// ExtractResponse holds the recovered records.
type ExtractResponse struct {
	Schema   string           `json:"schema"`
	Strategy string           `json:"strategy"`
	Count    int              `json:"count"`
	Records  []extract.Record `json:"records"`
}

// ExtractEndpoint handles POST /mathres/extract.
type ExtractEndpoint struct{}

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Extract structured records
//	@Description	Recovers qa or marking records from free-form agent output.
//	@Tags			extract
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ExtractRequest	true	"Raw output and schema"
//	@Success		200		{object}	ExtractResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/mathres/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, err := extract.ParseSchemaKind(req.Schema)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := svcctx.ExtractorFrom(r.Context()).Extract(req.RawOutput, kind)
	writeJSON(w, http.StatusOK, ExtractResponse{
		Schema:   kind.String(),
		Strategy: string(res.Strategy),
		Count:    len(res.Records),
		Records:  res.Records,
	})
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Recover records from raw agent output (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			var resp ExtractResponse
			req := ExtractRequest{RawOutput: string(raw), Schema: schema}
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), Prefix+"/extract", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "qa", "Record schema: qa or marking")
	return cmd
}
