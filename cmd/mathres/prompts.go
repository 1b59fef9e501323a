package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/prompts"
	"github.com/saitejavellanki/mathres/internal/prompts/marking"
	"github.com/saitejavellanki/mathres/internal/prompts/restructure"
	"github.com/saitejavellanki/mathres/internal/store"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

var (
	promptSubject string
	promptFile    string
	promptText    string
	promptNote    string
)

type promptInfo struct {
	Key         string   `json:"key"`
	Description string   `json:"description"`
	Variables   []string `json:"variables,omitempty"`
	Hash        string   `json:"hash"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and override agent prompts",
	Long: `Agent prompts are embedded Go templates. A subject may override any of
them; overrides live in the local store (store.driver must be sqlite or postgres).`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the embedded prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := newPromptResolver(nil)
		var out []promptInfo
		for _, p := range r.AllEmbedded() {
			out = append(out, promptInfo{Key: p.Key, Description: p.Description, Variables: p.Variables, Hash: p.Hash})
		}
		return api.Output(out)
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the prompt a subject resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var overrides prompts.OverrideSource
		if promptSubject != "" {
			st, err := openPromptStore(cmd.Context())
			if err != nil && !errors.Is(err, errNoStore) {
				return err
			}
			if st != nil {
				defer st.Close()
				overrides = st
			}
		}
		resolved, err := newPromptResolver(overrides).Resolve(cmd.Context(), args[0], promptSubject)
		if err != nil {
			return err
		}
		return api.Output(resolved)
	},
}

var promptsSetCmd = &cobra.Command{
	Use:   "set <subject_id> <key>",
	Short: "Override a prompt for a subject",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := promptInput(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if text == "" {
			return errors.New("override text is empty (use prompts clear to remove one)")
		}
		if _, err := newPromptResolver(nil).Resolve(cmd.Context(), args[1], ""); err != nil {
			return err
		}
		st, err := openPromptStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetPromptOverride(cmd.Context(), args[0], args[1], text, promptNote); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Override set for %s %s (%s)\n", args[0], args[1], prompts.HashText(text)[:12])
		return nil
	},
}

var promptsClearCmd = &cobra.Command{
	Use:   "clear <subject_id> <key>",
	Short: "Remove a subject's prompt override",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openPromptStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetPromptOverride(cmd.Context(), args[0], args[1], "", ""); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Override cleared for %s %s\n", args[0], args[1])
		return nil
	},
}

var errNoStore = errors.New("no local store configured (set store.driver)")

func newPromptResolver(overrides prompts.OverrideSource) *prompts.Resolver {
	r := prompts.NewResolver(overrides, slog.New(slog.NewTextHandler(io.Discard, nil)))
	restructure.RegisterPrompts(r)
	marking.RegisterPrompts(r)
	return r
}

func openPromptStore(ctx context.Context) (*store.SQLStore, error) {
	mgr, h, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	if cfg.Store.Driver == "" || cfg.Store.Driver == "none" {
		return nil, errNoStore
	}
	return svcctx.OpenStore(ctx, cfg.Store, h)
}

// promptInput reads the override from --text, --file, or stdin ("-").
func promptInput(stdin io.Reader) (string, error) {
	switch {
	case promptText != "":
		return promptText, nil
	case promptFile == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case promptFile != "":
		b, err := afero.ReadFile(appFs, promptFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("one of --text or --file is required")
}

func init() {
	promptsShowCmd.Flags().StringVar(&promptSubject, "subject", "", "Resolve overrides for this subject")
	promptsSetCmd.Flags().StringVar(&promptFile, "file", "", "Read the override from a file (- for stdin)")
	promptsSetCmd.Flags().StringVar(&promptText, "text", "", "Override text")
	promptsSetCmd.Flags().StringVar(&promptNote, "note", "", "Note stored with the override")
	promptsSetCmd.MarkFlagsMutuallyExclusive("file", "text")

	promptsCmd.AddCommand(promptsListCmd, promptsShowCmd, promptsSetCmd, promptsClearCmd)
	rootCmd.AddCommand(promptsCmd)
}
