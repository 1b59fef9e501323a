package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/config"
	"github.com/saitejavellanki/mathres/internal/extract"
)

// appFs is swapped for an in-memory filesystem in tests.
var appFs = afero.NewOsFs()

var (
	extractSchema string
	extractOutDir string
)

type fileResult struct {
	File     string          `json:"file"`
	Strategy string          `json:"strategy"`
	Count    int             `json:"count"`
	Records  json.RawMessage `json:"records"`
	Output   string          `json:"output,omitempty"`
}

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Recover QA or marking records from raw agent output",
	Long: `Run the extraction cascade over raw model output.

With no files, stdin is read and the JSON array is written to stdout.
With files, each one is processed concurrently and a summary is printed.
--out-dir writes <name>.json next to the summary for each input.

Examples:
  cat reply.txt | mathres extract
  mathres extract --schema marking replies/*.txt --out-dir out/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := extract.ParseSchemaKind(extractSchema)
		if err != nil {
			return err
		}
		ex := extractorFromConfig()

		if len(args) == 0 {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ex.ExtractStructured(string(raw), kind))
			return err
		}

		results, err := extractFiles(cmd.Context(), appFs, ex, kind, args, extractOutDir)
		if err != nil {
			return err
		}
		return api.OutputTo(cmd.OutOrStdout(), api.GetOutputFormat(), results)
	},
}

// extractorFromConfig uses the extract settings from config when they load
// and the defaults otherwise, so extract works without a config file.
func extractorFromConfig() *extract.Extractor {
	cfg := config.DefaultConfig()
	if mgr, _, err := loadConfig(); err == nil {
		cfg = mgr.Get()
	}
	return &extract.Extractor{Repair: cfg.Extract.Repair, Validate: cfg.Extract.Validate}
}

// extractFiles processes files concurrently. Results keep argument order.
func extractFiles(ctx context.Context, fs afero.Fs, ex *extract.Extractor, kind extract.SchemaKind, files []string, outDir string) ([]fileResult, error) {
	if outDir != "" {
		if err := fs.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := afero.ReadFile(fs, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			res := ex.Extract(string(raw), kind)
			encoded, err := extract.Encode(res.Records)
			if err != nil {
				return fmt.Errorf("encode %s: %w", path, err)
			}
			fr := fileResult{
				File:     path,
				Strategy: string(res.Strategy),
				Count:    len(res.Records),
				Records:  json.RawMessage(encoded),
			}
			if outDir != "" {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
				fr.Output = filepath.Join(outDir, name)
				if err := afero.WriteFile(fs, fr.Output, []byte(encoded+"\n"), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", fr.Output, err)
				}
			}
			results[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func init() {
	extractCmd.Flags().StringVarP(&extractSchema, "schema", "s", "qa", "Record schema: qa or marking")
	extractCmd.Flags().StringVar(&extractOutDir, "out-dir", "", "Write one <name>.json per input file")
	rootCmd.AddCommand(extractCmd)
}
