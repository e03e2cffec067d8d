package ingestion

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	controlPattern    = regexp.MustCompile(`[\x01-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	whitespacePattern = regexp.MustCompile(`[ \t]{2,}`)
	blankLinePattern  = regexp.MustCompile(`\n{4,}`)
)

// NormalizeText strips markup and control characters from source field
// content so the chunker sees plain prose. Frappe rich-text fields arrive as
// HTML fragments.
func NormalizeText(raw string) string {
	text := tagPattern.ReplaceAllString(raw, " ")
	text = html.UnescapeString(text)
	text = controlPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = blankLinePattern.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}

// ExtractFields pulls the projected text fields out of a document snapshot in
// a stable order. When fields is empty every string-valued field except
// bookkeeping metadata is taken, preserving the order given by fallbackOrder
// of the document keys.
func ExtractFields(doc map[string]interface{}, fields []string) []Field {
	if len(fields) > 0 {
		out := make([]Field, 0, len(fields))
		for _, name := range fields {
			if text, ok := stringField(doc, name); ok {
				out = append(out, Field{Name: name, Text: text})
			}
		}
		return out
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		if metadataFields[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Field, 0, len(names))
	for _, name := range names {
		if text, ok := stringField(doc, name); ok {
			out = append(out, Field{Name: name, Text: text})
		}
	}
	return out
}

// Field is one projected text field of a source document.
type Field struct {
	Name string
	Text string
}

// metadataFields change on every save and carry no prose worth indexing.
var metadataFields = map[string]bool{
	"name":        true,
	"owner":       true,
	"creation":    true,
	"modified":    true,
	"modified_by": true,
	"docstatus":   true,
	"idx":         true,
	"doctype":     true,
	"_user_tags":  true,
	"_comments":   true,
	"_assign":     true,
	"_liked_by":   true,
}

func stringField(doc map[string]interface{}, name string) (string, bool) {
	v, ok := doc[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
