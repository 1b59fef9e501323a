package extract

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    map[SchemaKind]*jsonschema.Schema
	compileErr  error
)

// SchemaDocument returns the JSON Schema describing an encoded array of
// records of kind.
func SchemaDocument(kind SchemaKind) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + kind.String() + ".json")
}

// ValidateRecords checks an encoded record array against the schema for
// kind.
func ValidateRecords(kind SchemaKind, data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, kind)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode records for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("records do not match %s schema: %w", kind, err)
	}
	return nil
}

func compileSchemas() {
	compiled = make(map[SchemaKind]*jsonschema.Schema, 2)
	for _, kind := range []SchemaKind{QA, Marking} {
		raw, err := SchemaDocument(kind)
		if err != nil {
			compileErr = fmt.Errorf("failed to read %s schema: %w", kind, err)
			return
		}
		url := kind.String() + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			compileErr = fmt.Errorf("failed to load %s schema: %w", kind, err)
			return
		}
		s, err := compiler.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("failed to compile %s schema: %w", kind, err)
			return
		}
		compiled[kind] = s
	}
}
