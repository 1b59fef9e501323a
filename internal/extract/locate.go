package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Strategy names the locate step that produced a value.
type Strategy string

const (
	StrategyWhole    Strategy = "whole"
	StrategyFenced   Strategy = "fenced"
	StrategyArray    Strategy = "array"
	StrategyObjects  Strategy = "objects"
	StrategyRepair   Strategy = "repair"
	StrategyFallback Strategy = "fallback"
	StrategyError    Strategy = "error"
)

var (
	fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

	arrayGreedy = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	arrayLazy   = regexp.MustCompile(`(?s)\[\s*\{.*?\}\s*\]`)
)

// Locate finds a JSON value in cleaned text. original is the text before
// cleaning and is only consulted for fenced blocks. The returned slice is
// the located array (a bare object becomes a one-element array); ok is
// false when no strategy succeeded. An empty slice with ok true is a valid
// result.
func Locate(cleaned, original string) ([]any, bool) {
	v, _, ok := locate(cleaned, original, false)
	return v, ok
}

func locate(cleaned, original string, repair bool) ([]any, Strategy, bool) {
	if v, ok := parseContainer(cleaned); ok {
		return v, StrategyWhole, true
	}

	for _, m := range fencedJSON.FindAllStringSubmatch(original, -1) {
		if v, ok := parseContainer(m[1]); ok {
			return v, StrategyFenced, true
		}
	}

	if v, ok := scanArrays(cleaned); ok {
		return v, StrategyArray, true
	}

	if objs := scanObjects(cleaned); len(objs) > 0 {
		return objs, StrategyObjects, true
	}

	if repair {
		if v, ok := repairContainer(cleaned); ok {
			return v, StrategyRepair, true
		}
	}

	return nil, "", false
}

// parseContainer parses s as a JSON value. An object or scalar becomes a
// one-element array.
func parseContainer(s string) ([]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	return []any{v}, true
}

// scanArrays tries the widest array-of-objects span first, then each
// minimal span in order of appearance.
func scanArrays(s string) ([]any, bool) {
	candidates := make([]string, 0, 4)
	if m := arrayGreedy.FindString(s); m != "" {
		candidates = append(candidates, m)
	}
	candidates = append(candidates, arrayLazy.FindAllString(s, -1)...)

	for _, c := range candidates {
		var arr []any
		if err := json.Unmarshal([]byte(c), &arr); err == nil {
			return arr, true
		}
	}
	return nil, false
}

// scanObjects collects every top-level object literal in s that parses.
// Depth tracking respects string literals inside objects, so braces in
// string values do not unbalance the scan. When a span fails to parse, or
// is never closed, the objects nested inside it are kept instead.
//
// The scan is a single pass. Each closed object is validated once with its
// already parsed children collapsed to {}, so input size bounds the work
// regardless of nesting.
func scanObjects(s string) []any {
	type frame struct {
		start, mark int
		failed      bool
	}
	var (
		stack []frame
		out   []any
		spans [][2]int
	)
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// Quotes in prose between objects are not string delimiters.
			if len(stack) > 0 {
				inString = true
			}
		case '{':
			stack = append(stack, frame{start: i, mark: len(out)})
		case '}':
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			var obj map[string]any
			ok := false
			if !f.failed {
				obj, ok = parseCollapsed(s, f.start, i+1, spans[f.mark:], out[f.mark:])
			}
			if !ok {
				if len(stack) > 0 {
					stack[len(stack)-1].failed = true
				}
				continue
			}
			out, spans = out[:f.mark], spans[:f.mark]
			out = append(out, obj)
			spans = append(spans, [2]int{f.start, i + 1})
		}
	}
	return out
}

// parseCollapsed parses s[start:end] as an object whose direct child
// objects, located at spans and already decoded into children, are
// replaced by {} before validation and substituted back afterwards.
func parseCollapsed(s string, start, end int, spans [][2]int, children []any) (map[string]any, bool) {
	var b strings.Builder
	pos := start
	for _, sp := range spans {
		b.WriteString(s[pos:sp[0]])
		b.WriteString("{}")
		pos = sp[1]
	}
	b.WriteString(s[pos:end])
	skeleton := []byte(b.String())
	if !json.Valid(skeleton) {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(skeleton))
	next := 0
	var value func(root bool) (any, error)
	value = func(root bool) (any, error) {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		d, isDelim := tok.(json.Delim)
		if !isDelim {
			return tok, nil
		}
		switch d {
		case '{':
			if !root {
				if _, err := dec.Token(); err != nil {
					return nil, err
				}
				if next >= len(children) {
					return nil, errors.New("extract: child object count mismatch")
				}
				next++
				return children[next-1], nil
			}
			obj := map[string]any{}
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, err
				}
				k, _ := key.(string)
				v, err := value(false)
				if err != nil {
					return nil, err
				}
				obj[k] = v
			}
			_, err := dec.Token()
			return obj, err
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := value(false)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			_, err := dec.Token()
			return arr, err
		}
		return nil, errors.New("extract: unexpected delimiter")
	}

	v, err := value(true)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// repairContainer runs jsonrepair over text that starts like JSON. This
// recovers truncated output such as an array cut off mid-record.
func repairContainer(s string) ([]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	return parseContainer(repaired)
}
