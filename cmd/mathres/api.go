package main

import (
	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	apiCmd := api.NewRegistry(endpoints.All()...).BuildCommands(getServerURL)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8888", "Server URL",
	)
	rootCmd.AddCommand(apiCmd)
}
