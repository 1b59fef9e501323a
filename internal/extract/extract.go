// Package extract recovers schema-conformant records from free-form agent
// output. Text is cleaned, searched for JSON with an ordered cascade of
// strategies, and normalized into QA or Marking records. When no JSON can be
// found a line-oriented parser reads labelled lines instead. The result is
// always a valid JSON array.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Result is the outcome of one extraction.
type Result struct {
	Records  []Record
	Strategy Strategy
}

// Extractor runs the extraction cascade with optional extras. The zero
// value behaves like ExtractStructured.
type Extractor struct {
	// Repair enables a last-resort jsonrepair pass over truncated JSON.
	Repair bool
	// Validate checks encoded output against the record JSON Schema.
	Validate bool
	// Logger receives one debug line per call. Nil discards.
	Logger *slog.Logger
}

var defaultExtractor = &Extractor{}

// ExtractStructured converts raw agent output into a JSON array of records
// of the given kind. It never fails: when nothing can be recovered the array
// holds a single "Error in processing" record.
func ExtractStructured(raw string, kind SchemaKind) string {
	return defaultExtractor.ExtractStructured(raw, kind)
}

// Extract returns the records recovered from raw along with the strategy
// that produced them.
func Extract(raw string, kind SchemaKind) Result {
	return defaultExtractor.Extract(raw, kind)
}

// Extract runs the cascade and returns records plus the winning strategy.
func (e *Extractor) Extract(raw string, kind SchemaKind) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Records:  []Record{kind.errorRecord(fmt.Sprint(r))},
				Strategy: StrategyError,
			}
		}
		e.logger().Debug("extracted records",
			"schema", kind.String(),
			"strategy", string(res.Strategy),
			"records", len(res.Records),
			"input_bytes", len(raw))
	}()

	if kind != QA && kind != Marking {
		return Result{
			Records:  []Record{QA.errorRecord(fmt.Sprintf("%v: %s", ErrUnknownSchema, kind))},
			Strategy: StrategyError,
		}
	}

	cleaned := Clean(raw)
	if values, strategy, ok := locate(cleaned, raw, e.Repair); ok {
		return Result{Records: Normalize(values, kind), Strategy: strategy}
	}

	records := ParseFallback(cleaned, kind)
	if len(records) > 0 {
		return Result{Records: records, Strategy: StrategyFallback}
	}

	return Result{
		Records:  []Record{kind.errorRecord(failureReason(raw))},
		Strategy: StrategyError,
	}
}

// ExtractStructured runs Extract and encodes the records.
func (e *Extractor) ExtractStructured(raw string, kind SchemaKind) string {
	res := e.Extract(raw, kind)
	out, err := Encode(res.Records)
	if err == nil && e.Validate {
		err = ValidateRecords(kind, []byte(out))
	}
	if err != nil {
		e.logger().Warn("encoded records rejected", "schema", kind.String(), "error", err)
		out, _ = Encode([]Record{kind.errorRecord(err.Error())})
	}
	return out
}

func (e *Extractor) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return discardLogger
	}
	return e.Logger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Encode renders records as a JSON array. HTML characters and non-ASCII
// text are written as-is. A nil slice encodes as [].
func Encode(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func failureReason(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "empty agent output"
	}
	return "no JSON or labelled records found in agent output"
}
