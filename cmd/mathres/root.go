package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/config"
	"github.com/saitejavellanki/mathres/internal/home"
	"github.com/saitejavellanki/mathres/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "mathres",
	Short: "Restructure OCR'd mathematics answer scripts with LLM agents",
	Long: `mathres turns the OCR text of a handwritten mathematics answer script
into question/answer records and awards marks against the subject rubric.

The pipeline:
  - Fetches OCR pages, vision descriptions, MCQ data and rubrics from the results backend
  - Runs a restructure agent and a marking agent
  - Recovers structured records from free-form model output
  - Saves the result to the backend and/or a local SQL store`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return api.SetOutputFormat(outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.mathres/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "mathres home directory (default: ~/.mathres)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the home directory and loads configuration.
func loadConfig() (*config.Manager, *home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, nil, err
	}
	return mgr, h, nil
}

// newLogger builds the text logger used by every long-running command.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}
