package extract

import (
	"strings"
)

// lineRule recognizes one kind of labelled line and stores its value into
// the record being accumulated.
type lineRule struct {
	match func(line, lower string) bool
	apply func(cur map[string]any, line string)
}

func labelled(key string) func(line, lower string) bool {
	return func(line, lower string) bool {
		return strings.HasPrefix(line, `"`+key+`"`) || strings.HasPrefix(lower, key)
	}
}

func setValue(key string) func(cur map[string]any, line string) {
	return func(cur map[string]any, line string) {
		cur[key] = labelValue(line)
	}
}

var (
	answerRule = lineRule{
		match: labelled("answer"),
		apply: setValue("answer"),
	}
	diagramRule = lineRule{
		match: func(line, lower string) bool {
			return strings.HasPrefix(line, `"diagram_or_equation"`) || strings.Contains(lower, "diagram")
		},
		apply: setValue("diagram_or_equation"),
	}
	marksRule = lineRule{
		match: func(_, lower string) bool {
			for _, k := range marksKeys {
				if strings.Contains(lower, k) {
					return true
				}
			}
			return false
		},
		apply: func(cur map[string]any, line string) {
			cur["marks_awarded"] = float64(ExtractInt(line))
		},
	}

	fieldRules = map[SchemaKind][]lineRule{
		QA:      {answerRule, diagramRule},
		Marking: {marksRule},
	}

	isQuestionLine = labelled("question")
)

// ParseFallback rebuilds records from label-prefixed lines when no JSON
// could be located. A question line closes the current record (if it has a
// question) and starts a new one. Lines matching no label are dropped.
func ParseFallback(cleaned string, kind SchemaKind) []Record {
	proto := kind.prototype()
	rules := fieldRules[kind]

	var out []Record
	cur := map[string]any{}
	flush := func() {
		if q, _ := cur["question"].(string); len(q) > 0 {
			out = append(out, proto.Coerce(cur))
		}
		cur = map[string]any{}
	}

	for _, raw := range strings.Split(cleaned, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		if isQuestionLine(line, lower) {
			if q, _ := cur["question"].(string); len(q) > 0 {
				flush()
			}
			cur["question"] = labelValue(line)
			continue
		}

		for _, r := range rules {
			if r.match(line, lower) {
				r.apply(cur, line)
				break
			}
		}
	}
	flush()

	if out == nil {
		out = []Record{}
	}
	return out
}

// labelValue returns the text after the first colon with surrounding
// whitespace, quotes and a trailing comma removed.
func labelValue(line string) string {
	if _, after, ok := strings.Cut(line, ":"); ok {
		line = after
	}
	v := strings.TrimSpace(line)
	v = strings.TrimSuffix(v, ",")
	v = strings.TrimSpace(v)
	return strings.Trim(v, `"'`)
}
