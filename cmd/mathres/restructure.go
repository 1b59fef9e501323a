package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

var restructureCmd = &cobra.Command{
	Use:   "restructure <subject_id> <script_id>",
	Short: "Run the pipeline once without a server",
	Long: `Fetch the answer sheet and rubric from the backend, run the restructure
and marking agents, persist the result, and print the outcome.

Logs go to stderr so the outcome on stdout can be piped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, h, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mgr.Get()
		logger := newLogger(os.Stderr, cfg)

		svcs, err := svcctx.Build(cmd.Context(), cfg, h, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		runner, err := svcs.RequireRunner()
		if err != nil {
			return err
		}
		outcome, runErr := runner.Run(cmd.Context(), args[0], args[1])
		if err := api.Output(outcome); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(restructureCmd)
}
