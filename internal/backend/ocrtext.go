package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/unicode/norm"
)

// maxWalkDepth bounds the recursive text walk over unknown OCR layouts.
const maxWalkDepth = 3

// metadataKeys are skipped by the recursive walk.
var metadataKeys = map[string]bool{
	"id":          true,
	"type":        true,
	"confidence":  true,
	"bbox":        true,
	"coordinates": true,
}

// PageText extracts readable text from one page's OCR payload. It
// understands AWS Textract, Google Vision, {text}, {lines:[{text}]} and
// {html} payloads as well as plain strings, and otherwise walks the
// document collecting string values. The result is NFC normalized.
func PageText(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	v, err := decodeOrdered(raw)
	if err != nil {
		return norm.NFC.String(string(raw))
	}
	return norm.NFC.String(textFromValue(v))
}

func textFromValue(v any) string {
	if isEmpty(v) {
		return ""
	}
	switch t := v.(type) {
	case object:
		return textFromObject(t)
	case string:
		return t
	default:
		return stringify(v)
	}
}

func textFromObject(o object) string {
	if blocks, ok := o.get("Blocks"); ok {
		return textractText(blocks)
	}
	if ann, ok := o.get("textAnnotations"); ok {
		return visionText(ann)
	}
	if text, ok := o.get("text"); ok {
		return stringify(text)
	}
	if lines, ok := o.get("lines"); ok {
		return linesText(lines)
	}
	if html, ok := o.get("html"); ok {
		if s, isStr := html.(string); isStr {
			return htmlText(s)
		}
	}
	return walkText(o, 0)
}

// textractText joins LINE blocks.
func textractText(v any) string {
	blocks, _ := v.([]any)
	var lines []string
	for _, b := range blocks {
		block, ok := b.(object)
		if !ok {
			continue
		}
		if bt, _ := block.get("BlockType"); bt != "LINE" {
			continue
		}
		if text, ok := block.get("Text"); ok {
			lines = append(lines, stringify(text))
		}
	}
	return strings.Join(lines, "\n")
}

// visionText returns the first annotation, which holds the full text.
func visionText(v any) string {
	anns, _ := v.([]any)
	if len(anns) == 0 {
		return ""
	}
	first, ok := anns[0].(object)
	if !ok {
		return ""
	}
	desc, _ := first.get("description")
	s, _ := desc.(string)
	return s
}

func linesText(v any) string {
	lines, ok := v.([]any)
	if !ok {
		return ""
	}
	var out []string
	for _, l := range lines {
		line, ok := l.(object)
		if !ok {
			continue
		}
		text, _ := line.get("text")
		if isEmpty(text) {
			continue
		}
		out = append(out, stringify(text))
	}
	return strings.Join(out, "\n")
}

func htmlText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(md)
}

// walkText collects non-blank strings depth first, skipping metadata keys.
func walkText(v any, depth int) string {
	if depth >= maxWalkDepth {
		return ""
	}
	var parts []string
	collect := func(key string, val any, keyed bool) {
		switch t := val.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				return
			}
			if keyed && metadataKeys[strings.ToLower(key)] {
				return
			}
			parts = append(parts, s)
		case object, []any:
			if nested := walkText(t, depth+1); nested != "" {
				parts = append(parts, nested)
			}
		}
	}

	switch t := v.(type) {
	case object:
		for _, m := range t {
			collect(m.Key, m.Value, true)
		}
	case []any:
		for _, item := range t {
			collect("", item, false)
		}
	}
	return strings.Join(parts, "\n")
}

// isEmpty mirrors truthiness for decoded JSON: null, "", 0, false, {} and
// [] are empty.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case object:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// stringify renders scalars as text and containers as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// member is one key of a decoded JSON object.
type member struct {
	Key   string
	Value any
}

// object is a JSON object that keeps its key order.
type object []member

func (o object) get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the object in its original key order.
func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeOrdered decodes JSON keeping object key order. Numbers decode as
// json.Number.
func decodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return readValue(dec)
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := object{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}
