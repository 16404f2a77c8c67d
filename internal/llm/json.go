package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fields is a loosely typed JSON object read from model output.
// Every accessor tolerates a missing key or a wrong type and returns its zero/default.
type Fields map[string]any

// ExtractJSON parses the text between the first '{' and the last '}' of a model reply.
// Anything else, including malformed JSON, yields an empty non-nil Fields.
//
// This is not a real JSON-in-text scanner: prose that contains a literal brace
// before the actual object makes the slice unparseable.
func ExtractJSON(text string) Fields {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Fields{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil || out == nil {
		return Fields{}
	}
	return Fields(out)
}

// String returns the value at key rendered as a string. Numbers and booleans are formatted.
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// StringOr returns the string value at key or def when it is empty.
func (f Fields) StringOr(key, def string) string {
	if s := strings.TrimSpace(f.String(key)); s != "" {
		return s
	}
	return def
}

// Strings returns the string elements of a list value, skipping anything else.
// A bare string is returned as a single element list.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Float returns a numeric value at key, parsing numeric strings, or def.
func (f Fields) Float(key string, def float64) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return n
		}
	}
	return def
}

// Int is Float truncated to an int.
func (f Fields) Int(key string, def int) int {
	return int(f.Float(key, float64(def)))
}

// Map returns a nested object or an empty Fields.
func (f Fields) Map(key string) Fields {
	if m, ok := f[key].(map[string]any); ok {
		return Fields(m)
	}
	return Fields{}
}

// Slice returns the object elements of a list value.
func (f Fields) Slice(key string) []Fields {
	items, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Fields, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Fields(m))
		}
	}
	return out
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}
