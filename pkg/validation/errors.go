package validation

import "errors"

// maxExpectedValues caps how many valid values a rule violation lists in
// its structured details.
const maxExpectedValues = 20

// Failure is implemented by every hard validation error (stages 1-3). The
// retry engine records Details() from each failed attempt and walks the
// strategy ladder; errors outside this class abort the run untouched.
type Failure interface {
	error
	Details() map[string]any
}

// ParseError reports stage 1 rejection: the raw LLM output is not a JSON
// object. Snippet carries up to 500 bytes of the offending content for
// logs and DLQ entries.
type ParseError struct {
	Msg     string
	Snippet string
	Cause   string
}

func (e *ParseError) Error() string { return "validation: " + e.Msg }

func (e *ParseError) Details() map[string]any {
	d := make(map[string]any)
	if e.Snippet != "" {
		d["content_snippet"] = e.Snippet
	}
	if e.Cause != "" {
		d["parse_error"] = e.Cause
	}
	return d
}

// SchemaError reports stage 2 rejection: the parsed object does not
// satisfy the email_triage_v2 document. Violations holds at most ten
// "path: message" lines; the total count lives in Msg.
type SchemaError struct {
	Msg        string
	Violations []string
}

func (e *SchemaError) Error() string { return "validation: " + e.Msg }

func (e *SchemaError) Details() map[string]any {
	d := make(map[string]any)
	if len(e.Violations) > 0 {
		d["validation_errors"] = e.Violations
	}
	return d
}

// RuleError reports stage 3 rejection: a closed-world business rule was
// violated. Expected is nil when the valid set is too large to list, as
// with candidate ids.
type RuleError struct {
	Rule         string
	Msg          string
	InvalidValue string
	Expected     []string
	FieldPath    string
}

func (e *RuleError) Error() string { return "validation: " + e.Msg }

func (e *RuleError) Details() map[string]any {
	d := make(map[string]any)
	if e.Rule != "" {
		d["rule_name"] = e.Rule
	}
	if e.InvalidValue != "" {
		d["invalid_value"] = e.InvalidValue
	}
	if len(e.Expected) > 0 {
		expected := e.Expected
		if len(expected) > maxExpectedValues {
			expected = expected[:maxExpectedValues]
		}
		d["expected_values"] = expected
	}
	if e.FieldPath != "" {
		d["field_path"] = e.FieldPath
	}
	return d
}

// IsFailure reports whether err is a hard validation failure. Anything
// else (gateway errors, context cancellation) is an infrastructure
// problem the retry ladder must not absorb.
func IsFailure(err error) bool {
	var f Failure
	return errors.As(err, &f)
}

// FailureDetails extracts the structured details of a validation failure.
// Non-validation errors collapse to a generic {"error": ...} entry so DLQ
// records always carry something inspectable.
func FailureDetails(err error) map[string]any {
	var f Failure
	if errors.As(err, &f) {
		return f.Details()
	}
	return map[string]any{"error": err.Error()}
}
