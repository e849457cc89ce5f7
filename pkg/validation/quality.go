package validation

import (
	"fmt"
	"strings"

	"github.com/mailops/triaged/pkg/models"
)

// longQuoteWarning triggers below the schema's 200-char hard cap so
// near-limit quotes surface before they start getting rejected.
const longQuoteWarning = 180

// QualityChecker is stage 4: advisory checks on an already-valid verdict.
// Nothing here rejects a response; every finding is a warning string.
type QualityChecker struct {
	// MinConfidence is the threshold below which topic, sentiment, and
	// priority confidences draw a warning.
	MinConfidence float64
}

// Check runs all quality checks and returns the accumulated warnings.
func (q QualityChecker) Check(resp *models.EmailTriageResponse) []string {
	var warnings []string
	warnings = append(warnings, q.lowConfidence(resp)...)
	warnings = append(warnings, duplicates(resp)...)
	warnings = append(warnings, completeness(resp)...)
	return warnings
}

func (q QualityChecker) lowConfidence(resp *models.EmailTriageResponse) []string {
	var out []string
	if resp.Sentiment.Confidence < q.MinConfidence {
		out = append(out, fmt.Sprintf("Low sentiment confidence: %.3f (threshold: %g)",
			resp.Sentiment.Confidence, q.MinConfidence))
	}
	if resp.Priority.Confidence < q.MinConfidence {
		out = append(out, fmt.Sprintf("Low priority confidence: %.3f (threshold: %g)",
			resp.Priority.Confidence, q.MinConfidence))
	}
	for i, topic := range resp.Topics {
		if topic.Confidence < q.MinConfidence {
			out = append(out, fmt.Sprintf("Low confidence for topic '%s' at index %d: %.3f (threshold: %g)",
				topic.LabelID, i, topic.Confidence, q.MinConfidence))
		}
	}
	return out
}

func duplicates(resp *models.EmailTriageResponse) []string {
	var out []string

	seenLabels := make(map[models.Topic]struct{}, len(resp.Topics))
	for i, topic := range resp.Topics {
		if _, dup := seenLabels[topic.LabelID]; dup {
			out = append(out, fmt.Sprintf("Duplicate topic '%s' at index %d", topic.LabelID, i))
		}
		seenLabels[topic.LabelID] = struct{}{}
	}

	for ti, topic := range resp.Topics {
		seenIDs := make(map[string]struct{}, len(topic.KeywordsInText))
		for ki, kw := range topic.KeywordsInText {
			if _, dup := seenIDs[kw.CandidateID]; dup {
				out = append(out, fmt.Sprintf("Duplicate keyword candidateid '%s' in topic '%s' (topic index %d, keyword index %d)",
					kw.CandidateID, topic.LabelID, ti, ki))
			}
			seenIDs[kw.CandidateID] = struct{}{}
		}
	}

	for ti, topic := range resp.Topics {
		seenQuotes := make(map[string]struct{}, len(topic.Evidence))
		for ei, ev := range topic.Evidence {
			normalized := strings.ToLower(strings.TrimSpace(ev.Quote))
			if _, dup := seenQuotes[normalized]; dup {
				out = append(out, fmt.Sprintf("Duplicate evidence quote in topic '%s' (topic index %d, evidence index %d)",
					topic.LabelID, ti, ei))
			}
			seenQuotes[normalized] = struct{}{}
		}
	}
	return out
}

func completeness(resp *models.EmailTriageResponse) []string {
	var out []string
	for i, topic := range resp.Topics {
		if len(topic.KeywordsInText) == 0 {
			out = append(out, fmt.Sprintf("Topic '%s' at index %d has no keywords", topic.LabelID, i))
		}
	}
	for i, topic := range resp.Topics {
		if len(topic.Evidence) == 0 {
			out = append(out, fmt.Sprintf("Topic '%s' at index %d has no evidence", topic.LabelID, i))
		}
	}
	if len(resp.Priority.Signals) == 0 {
		out = append(out, "Priority has no signals (expected 1-6 signals)")
	}
	for ti, topic := range resp.Topics {
		for ei, ev := range topic.Evidence {
			if len(ev.Quote) > longQuoteWarning {
				out = append(out, fmt.Sprintf("Evidence quote is very long (%d chars) in topic '%s' (topic index %d, evidence index %d)",
					len(ev.Quote), topic.LabelID, ti, ei))
			}
		}
	}
	return out
}
