package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxReportedViolations caps how many schema violations one failure
// reports; the message still carries the full count.
const maxReportedViolations = 10

// CheckSchema is stage 2: validate the parsed object against the compiled
// email_triage_v2 document. All violations are collected; the first ten
// are reported as "path: message" lines with dot-separated instance paths.
func CheckSchema(compiled *jsonschema.Schema, data map[string]any) error {
	err := compiled.Validate(data)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &SchemaError{
			Msg:        "JSON Schema validation failed with 1 error(s)",
			Violations: []string{"root: " + err.Error()},
		}
	}
	violations := collectViolations(verr, nil)
	msg := fmt.Sprintf("JSON Schema validation failed with %d error(s)", len(violations))
	if len(violations) > maxReportedViolations {
		violations = violations[:maxReportedViolations]
	}
	return &SchemaError{Msg: msg, Violations: violations}
}

// collectViolations walks the cause tree depth-first keeping only leaf
// messages; branch nodes just restate their children.
func collectViolations(verr *jsonschema.ValidationError, out []string) []string {
	if len(verr.Causes) == 0 {
		return append(out, formatViolation(verr))
	}
	for _, cause := range verr.Causes {
		out = collectViolations(cause, out)
	}
	return out
}

// formatViolation renders one violation as "path: message" with the JSON
// pointer converted to a dot path ("root" when the violation is at the
// document top level).
func formatViolation(verr *jsonschema.ValidationError) string {
	path := strings.TrimPrefix(verr.InstanceLocation, "#")
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, "/", ".")
	if path == "" {
		path = "root"
	}
	return path + ": " + verr.Message
}
