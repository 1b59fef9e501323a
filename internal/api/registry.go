package api

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a registry holding eps.
func NewRegistry(eps ...Endpoint) *Registry {
	return &Registry{endpoints: eps}
}

// Register adds endpoints to the registry.
func (r *Registry) Register(eps ...Endpoint) {
	r.endpoints = append(r.endpoints, eps...)
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}

// RegisterRoutes mounts every endpoint on mux under prefix. requireInit
// wraps handlers whose endpoint reports RequiresInit.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, prefix string, requireInit func(http.HandlerFunc) http.HandlerFunc) {
	prefix = strings.TrimRight(prefix, "/")
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() && requireInit != nil {
			handler = requireInit(handler)
		}
		mux.HandleFunc(method+" "+prefix+path, handler)
	}
}

// Routes lists "METHOD path" for every endpoint under prefix.
func (r *Registry) Routes(prefix string) []string {
	prefix = strings.TrimRight(prefix, "/")
	out := make([]string, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		method, path, _ := ep.Route()
		out = append(out, method+" "+prefix+path)
	}
	return out
}

// BuildCommands returns the "api" command with one subcommand per endpoint.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call a running mathres server via HTTP.

These commands require a running server (mathres serve).
Use --server to specify a custom server URL.

Examples:
  mathres api health                          # Check backend connectivity
  mathres api restructure math-101 script-7   # Run the pipeline for one script
  mathres api extract --schema qa < reply.txt # Recover records from raw output`,
	}

	for _, ep := range r.endpoints {
		apiCmd.AddCommand(ep.Command(getServerURL))
	}
	return apiCmd
}
