package extract

import (
	"regexp"
	"strings"
)

// fenceMarker matches an opening or closing markdown fence, including an
// optional language tag and the whitespace after it.
var fenceMarker = regexp.MustCompile("```[A-Za-z0-9_+-]*\\s*")

// Clean removes markdown fences and any prose outside the outermost JSON
// brackets. Fenced content is kept. Text without brackets is returned
// whitespace-trimmed.
func Clean(raw string) string {
	cleaned := fenceMarker.ReplaceAllString(raw, "")

	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return strings.TrimSpace(cleaned)
	}
	cleaned = cleaned[start:]

	if end := strings.LastIndexAny(cleaned, "]}"); end >= 0 {
		cleaned = cleaned[:end+1]
	}
	return strings.TrimSpace(cleaned)
}
