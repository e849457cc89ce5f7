// Package validation rejects or accepts LLM verdicts through four stages:
// JSON parse, JSON Schema, business rules, and quality checks, followed by
// the presence and span verifiers. The first three stages fail hard with a
// Failure the retry engine reacts to; everything after only accumulates
// warning strings that travel with the accepted result.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxContentSnippet bounds how much raw LLM output a parse failure carries
// into logs and DLQ entries.
const maxContentSnippet = 500

// ParseContent is stage 1: decode raw LLM output into a JSON object.
// Empty, malformed, or non-object content is a hard failure.
func ParseContent(content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ParseError{
			Msg:     "response content is empty or whitespace-only",
			Snippet: contentSnippet(content),
			Cause:   "empty content",
		}
	}
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, &ParseError{
			Msg:     fmt.Sprintf("malformed JSON in response: %v", err),
			Snippet: contentSnippet(content),
			Cause:   err.Error(),
		}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		kind := jsonTypeName(parsed)
		return nil, &ParseError{
			Msg:     fmt.Sprintf("response is not a JSON object (got %s)", kind),
			Snippet: contentSnippet(content),
			Cause:   "expected object, got " + kind,
		}
	}
	return obj, nil
}

func contentSnippet(content string) string {
	if len(content) > maxContentSnippet {
		return content[:maxContentSnippet]
	}
	return content
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
