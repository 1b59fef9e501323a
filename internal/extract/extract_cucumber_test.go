//go:build cucumber

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// TestExtractionScenarios runs the extraction feature scenarios.
func TestExtractionScenarios(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "extraction",
		ScenarioInitializer: InitializeExtractionScenario,
		Options: &godog.Options{
			Format:    "pretty",
			Paths:     []string{filepath.Join("features", "extraction.feature")},
			Strict:    true,
			TestingT:  t,
			Randomize: 0,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeExtractionScenario wires the extraction steps.
func InitializeExtractionScenario(ctx *godog.ScenarioContext) {
	state := &extractionState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^the agent output:$`, state.givenAgentOutput)
	ctx.Step(`^empty agent output$`, state.givenEmptyOutput)
	ctx.Step(`^I extract "([^"]+)" records$`, state.whenIExtract)
	ctx.Step(`^the output is:$`, state.thenOutputIs)
	ctx.Step(`^the output has (\d+) records?$`, state.thenRecordCount)
	ctx.Step(`^record (\d+) has "([^"]+)" equal to "([^"]*)"$`, state.thenRecordField)
}

type extractionState struct {
	raw    string
	output string
	rows   []map[string]any
}

func (s *extractionState) reset() {
	s.raw = ""
	s.output = ""
	s.rows = nil
}

func (s *extractionState) givenAgentOutput(doc *godog.DocString) error {
	s.raw = doc.Content
	return nil
}

func (s *extractionState) givenEmptyOutput() error {
	s.raw = ""
	return nil
}

func (s *extractionState) whenIExtract(schema string) error {
	kind, err := ParseSchemaKind(schema)
	if err != nil {
		return err
	}
	s.output = ExtractStructured(s.raw, kind)
	if err := json.Unmarshal([]byte(s.output), &s.rows); err != nil {
		return fmt.Errorf("output is not a JSON array of objects: %w", err)
	}
	return nil
}

func (s *extractionState) thenOutputIs(doc *godog.DocString) error {
	want := strings.TrimSpace(doc.Content)
	if s.output != want {
		return fmt.Errorf("output = %s, want %s", s.output, want)
	}
	return nil
}

func (s *extractionState) thenRecordCount(n int) error {
	if len(s.rows) != n {
		return fmt.Errorf("got %d records, want %d: %s", len(s.rows), n, s.output)
	}
	return nil
}

func (s *extractionState) thenRecordField(idx int, field, want string) error {
	if idx < 1 || idx > len(s.rows) {
		return fmt.Errorf("record %d out of range (have %d)", idx, len(s.rows))
	}
	v, ok := s.rows[idx-1][field]
	if !ok {
		return fmt.Errorf("record %d has no field %q", idx, field)
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("record %d %s = %q, want %q", idx, field, got, want)
	}
	return nil
}
