package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint defines both an HTTP route and its corresponding CLI command.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	// Paths are relative to the server's route prefix.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit returns true if the handler needs the pipeline runner,
	// which is only built once an LLM provider is available.
	RequiresInit() bool

	// Command returns a Cobra command that calls this endpoint via HTTP.
	// getServerURL is called at runtime, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}
