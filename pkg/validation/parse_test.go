package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_ValidObject(t *testing.T) {
	parsed, err := ParseContent(`{"dictionaryversion": 3, "topics": []}`)
	require.NoError(t, err)
	assert.Equal(t, float64(3), parsed["dictionaryversion"])
	assert.Contains(t, parsed, "topics")
}

func TestParseContent_EmptyContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t  \n"} {
		_, err := ParseContent(content)
		require.Error(t, err)

		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Contains(t, err.Error(), "empty or whitespace-only")
		assert.Equal(t, "empty content", perr.Details()["parse_error"])
		assert.True(t, IsFailure(err))
	}
}

func TestParseContent_EmptyContentOmitsSnippet(t *testing.T) {
	_, err := ParseContent("")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.NotContains(t, perr.Details(), "content_snippet")

	_, err = ParseContent("   ")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "   ", perr.Details()["content_snippet"])
}

func TestParseContent_MalformedJSON(t *testing.T) {
	_, err := ParseContent(`{"topics": [unterminated`)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "malformed JSON")
	assert.Equal(t, `{"topics": [unterminated`, perr.Details()["content_snippet"])
	assert.NotEmpty(t, perr.Details()["parse_error"])
}

func TestParseContent_NonObject(t *testing.T) {
	tests := []struct {
		content string
		kind    string
	}{
		{`[1, 2, 3]`, "array"},
		{`"just a string"`, "string"},
		{`42`, "number"},
		{`true`, "boolean"},
		{`null`, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			_, err := ParseContent(tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not a JSON object (got "+tt.kind+")")

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "expected object, got "+tt.kind, perr.Details()["parse_error"])
		})
	}
}

func TestParseContent_SnippetCapped(t *testing.T) {
	content := "{" + strings.Repeat("x", 900)
	_, err := ParseContent(content)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	snippet, ok := perr.Details()["content_snippet"].(string)
	require.True(t, ok)
	assert.Len(t, snippet, 500)
	assert.Equal(t, content[:500], snippet)
}
