package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mathres server",
	Long: `Start the mathres HTTP server.

Routes are mounted under /mathres:
  GET  /mathres/                                         Service information
  GET  /mathres/restructure/{subject_id}/{script_id}     Run the pipeline
  POST /mathres/restructure/{subject_id}/{script_id}/enqueue
  POST /mathres/extract                                  Recover records from raw output
  GET  /mathres/health                                   Backend connectivity
  GET  /mathres/status                                   Providers, store and queue
  GET  /mathres/swagger.json                             OpenAPI document

The config file is watched; provider and backend changes apply without a restart.

Examples:
  mathres serve                  # Listen on server.port (default 8888, or $PORT)
  mathres serve --port 3000      # Override the port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, h, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(os.Stdout, mgr.Get())
		mgr.SetLogger(logger)
		mgr.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: mgr,
			Home:          h,
			Host:          serveHost,
			Port:          servePort,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until shutdown
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")

	rootCmd.AddCommand(serveCmd)
}
