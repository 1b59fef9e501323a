package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SchemaKind selects the record shape produced by the engine.
type SchemaKind int

const (
	// QA produces question/answer/diagram records.
	QA SchemaKind = iota
	// Marking produces question/marks records.
	Marking
)

// ErrUnknownSchema is returned by ParseSchemaKind for unrecognized names.
var ErrUnknownSchema = errors.New("unknown schema")

// String returns the canonical schema name.
func (k SchemaKind) String() string {
	switch k {
	case QA:
		return "qa"
	case Marking:
		return "marking"
	default:
		return fmt.Sprintf("schema(%d)", int(k))
	}
}

// ParseSchemaKind maps a schema name to a SchemaKind.
// "restructure" is accepted as an alias for qa.
func ParseSchemaKind(s string) (SchemaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qa", "restructure":
		return QA, nil
	case "marking":
		return Marking, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSchema, s)
	}
}

// Record is one normalized output entry.
type Record interface {
	// FieldNames lists the JSON keys every emitted record carries.
	FieldNames() []string
	// Coerce builds a record of the same kind from an arbitrary map.
	Coerce(raw map[string]any) Record
	// QuestionText returns the question field.
	QuestionText() string
}

// QARecord is a restructured question with its answer.
type QARecord struct {
	Question          string `json:"question"`
	Answer            string `json:"answer"`
	DiagramOrEquation string `json:"diagram_or_equation"`
}

func (QARecord) FieldNames() []string {
	return []string{"question", "answer", "diagram_or_equation"}
}

func (QARecord) Coerce(raw map[string]any) Record {
	return QARecord{
		Question:          stringField(raw, "question"),
		Answer:            stringField(raw, "answer"),
		DiagramOrEquation: stringField(raw, "diagram_or_equation"),
	}
}

func (r QARecord) QuestionText() string { return r.Question }

// MarkingRecord is the mark allocated to one question.
type MarkingRecord struct {
	Question     string `json:"question"`
	MarksAwarded int    `json:"marks_awarded"`
}

// marksKeys are consulted in order; the first coercible value wins.
var marksKeys = []string{"marks_awarded", "marks", "score", "points"}

func (MarkingRecord) FieldNames() []string {
	return []string{"question", "marks_awarded"}
}

func (MarkingRecord) Coerce(raw map[string]any) Record {
	rec := MarkingRecord{Question: stringField(raw, "question")}
	for _, key := range marksKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if n, ok := coerceMarks(v); ok {
			rec.MarksAwarded = n
			break
		}
	}
	return rec
}

func (r MarkingRecord) QuestionText() string { return r.Question }

// prototype returns the zero record for a kind.
func (k SchemaKind) prototype() Record {
	if k == Marking {
		return MarkingRecord{}
	}
	return QARecord{}
}

// errorRecord is the single record emitted when nothing could be recovered.
func (k SchemaKind) errorRecord(reason string) Record {
	if k == Marking {
		return MarkingRecord{Question: errorQuestion}
	}
	return QARecord{
		Question: errorQuestion,
		Answer:   "Processing error: " + reason,
	}
}

const errorQuestion = "Error in processing"

// stringField reads key from raw as a string. Missing and null values
// become "".
func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// coerceMarks converts a marks value to a non-negative integer. The bool
// result reports whether v could be interpreted as a number at all.
func coerceMarks(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || math.IsNaN(t) {
			return 0, true
		}
		if t > math.MaxInt32 {
			return math.MaxInt32, true
		}
		return int(t), true
	case string:
		s := strings.TrimSpace(t)
		if !strings.ContainsAny(s, "0123456789") {
			return 0, false
		}
		if strings.HasPrefix(s, "-") && len(s) > 1 && isDigit(s[1]) {
			return 0, true
		}
		return ExtractInt(s), true
	default:
		return 0, false
	}
}
