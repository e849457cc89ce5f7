package prompt

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mailops/triaged/pkg/models"
)

// sentenceEndRE matches sentence-ending punctuation followed by whitespace
// or end-of-string.
var sentenceEndRE = regexp.MustCompile(`[.!?](\s|$)`)

// TruncateAtSentenceBoundary truncates text at the nearest sentence boundary
// before maxChars, preserving complete sentences for the model. If no
// boundary exists in the window, it falls back to the last space provided
// that keeps at least 80% of the budget, and hard-cuts otherwise.
func TruncateAtSentenceBoundary(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	segment := text[:maxChars]

	matches := sentenceEndRE.FindAllStringIndex(segment, -1)
	if len(matches) > 0 {
		// Cut after the punctuation of the last boundary, excluding the
		// trailing whitespace the pattern may have consumed.
		cutoff := matches[len(matches)-1][1]
		if cutoff > 0 && isSpaceByte(segment[cutoff-1]) {
			cutoff--
		}
		return text[:cutoff]
	}

	// No sentence boundary: avoid cutting a word in half when the last
	// space still keeps most of the window.
	lastSpace := strings.LastIndexByte(segment, ' ')
	if float64(lastSpace) > float64(maxChars)*0.8 {
		return text[:lastSpace]
	}

	// Hard cut. Back up to a rune boundary so accented text never loses
	// half a UTF-8 sequence.
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// AdjustPiiSpans filters and clamps PII entities after body truncation.
// Entities fully inside the truncated text are kept unchanged, entities
// starting at or past the cut are dropped, and entities straddling the
// boundary get their end clamped. With sentence-boundary truncation the
// straddling case is rare.
func AdjustPiiSpans(entities []models.PiiEntity, truncatedLength int) []models.PiiEntity {
	if len(entities) == 0 {
		return nil
	}

	adjusted := make([]models.PiiEntity, 0, len(entities))
	for _, e := range entities {
		switch {
		case e.SpanEnd <= truncatedLength:
			adjusted = append(adjusted, e)
		case e.SpanStart >= truncatedLength:
			// Entirely past the cut.
		default:
			clamped := e
			clamped.SpanEnd = truncatedLength
			adjusted = append(adjusted, clamped)
		}
	}
	return adjusted
}

// ApproxTokens estimates the token count of text. Italian inflection makes
// words longer than English but semantic density is similar; three chars
// per token is a workable pre-flight bound. Never returns less than 1.
func ApproxTokens(text string) int {
	n := len(text) / 3
	if n < 1 {
		return 1
	}
	return n
}
