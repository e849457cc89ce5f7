package validation

import (
	"fmt"
	"strings"

	"github.com/mailops/triaged/pkg/models"
)

// quoteSnippet bounds how much of a missing evidence quote a warning
// reproduces.
const quoteSnippet = 100

// VerifyEvidencePresence checks that every evidence quote occurs in the
// canonical body (case-insensitive) and that a claimed span actually
// extracts the quoted text. Findings are warnings; fabricated evidence
// does not reject an otherwise valid verdict.
func VerifyEvidencePresence(resp *models.EmailTriageResponse, req *models.TriageRequest) []string {
	body := req.Email.BodyTextCanonical
	if body == "" {
		return []string{"Email body_text_canonical is empty, cannot verify evidence presence"}
	}
	bodyLower := strings.ToLower(body)

	var warnings []string
	for ti, topic := range resp.Topics {
		for ei, ev := range topic.Evidence {
			quote := strings.TrimSpace(ev.Quote)
			if !strings.Contains(bodyLower, strings.ToLower(quote)) {
				head := quote
				if len(head) > quoteSnippet {
					head = head[:quoteSnippet]
				}
				warnings = append(warnings, fmt.Sprintf(
					"Evidence quote not found in email text: '%s...' (topic '%s', topic index %d, evidence index %d)",
					head, topic.LabelID, ti, ei))
				continue
			}
			if len(ev.Span) == 2 && !spanMatchesQuote(body, quote, ev.Span[0], ev.Span[1]) {
				warnings = append(warnings, fmt.Sprintf(
					"Evidence span [%d:%d] does not match quote in topic '%s' (topic index %d, evidence index %d)",
					ev.Span[0], ev.Span[1], topic.LabelID, ti, ei))
			}
		}
	}
	return warnings
}

// spanMatchesQuote reports whether body[start:end], trimmed and lowered,
// equals the quote under the same normalization.
func spanMatchesQuote(body, quote string, start, end int) bool {
	if start < 0 || end > len(body) || start >= end {
		return false
	}
	extracted := strings.ToLower(strings.TrimSpace(body[start:end]))
	return extracted == strings.ToLower(strings.TrimSpace(quote))
}

// VerifyKeywordPresence checks that each selected keyword's term or lemma
// occurs in the canonical body and that keyword spans stay inside it. An
// unknown candidate id surfaces here as a warning too; stage 3 normally
// rejects those first.
func VerifyKeywordPresence(resp *models.EmailTriageResponse, req *models.TriageRequest) []string {
	body := req.Email.BodyTextCanonical
	if body == "" {
		return []string{"Email body_text_canonical is empty, cannot verify keyword presence"}
	}
	bodyLower := strings.ToLower(body)

	type candidateTerms struct {
		term, lemma string
	}
	byID := make(map[string]candidateTerms, len(req.CandidateKeywords))
	for _, c := range req.CandidateKeywords {
		byID[c.CandidateID] = candidateTerms{term: c.Term, lemma: c.Lemma}
	}

	var warnings []string
	for _, topic := range resp.Topics {
		for ki, kw := range topic.KeywordsInText {
			cand, ok := byID[kw.CandidateID]
			if !ok {
				warnings = append(warnings, fmt.Sprintf(
					"Keyword candidateid '%s' not in candidates (topic '%s', keyword index %d)",
					kw.CandidateID, topic.LabelID, ki))
				continue
			}
			termFound := strings.Contains(bodyLower, strings.ToLower(cand.term))
			lemmaFound := strings.Contains(bodyLower, strings.ToLower(cand.lemma))
			if !termFound && !lemmaFound {
				warnings = append(warnings, fmt.Sprintf(
					"Keyword term '%s' / lemma '%s' not found in email text (candidateid: %s, topic '%s', keyword index %d)",
					cand.term, cand.lemma, kw.CandidateID, topic.LabelID, ki))
				continue
			}
			for _, span := range kw.Spans {
				if len(span) != 2 {
					warnings = append(warnings, fmt.Sprintf(
						"Invalid span format for keyword '%s': %v (expected [start, end])", cand.term, span))
					continue
				}
				if span[0] < 0 || span[0] >= span[1] || span[1] > len(body) {
					warnings = append(warnings, fmt.Sprintf(
						"Keyword span [%d:%d] out of bounds for '%s' (text length: %d)",
						span[0], span[1], cand.term, len(body)))
				}
			}
		}
	}
	return warnings
}

// VerifySpanCoherence checks every span in the verdict for well-formedness
// against the body length. This verifier always runs; there is no config
// switch for it.
func VerifySpanCoherence(resp *models.EmailTriageResponse, req *models.TriageRequest) []string {
	textLen := len(req.Email.BodyTextCanonical)

	var warnings []string
	for _, topic := range resp.Topics {
		for _, kw := range topic.KeywordsInText {
			context := fmt.Sprintf("keyword '%s' in topic '%s'", kw.Lemma, topic.LabelID)
			for _, span := range kw.Spans {
				if w := checkSpan(span, textLen, context); w != "" {
					warnings = append(warnings, w)
				}
			}
		}
		for _, ev := range topic.Evidence {
			if len(ev.Span) == 0 {
				continue
			}
			context := fmt.Sprintf("evidence in topic '%s'", topic.LabelID)
			if w := checkSpan(ev.Span, textLen, context); w != "" {
				warnings = append(warnings, w)
			}
		}
	}
	return warnings
}

func checkSpan(span []int, textLen int, context string) string {
	if len(span) != 2 {
		return fmt.Sprintf("Invalid span format for %s: %v (expected [start, end])", context, span)
	}
	start, end := span[0], span[1]
	switch {
	case start >= end:
		return fmt.Sprintf("Span start >= end for %s: [%d, %d]", context, start, end)
	case start < 0:
		return fmt.Sprintf("Span start < 0 for %s: [%d, %d]", context, start, end)
	case end > textLen:
		return fmt.Sprintf("Span end > text length for %s: [%d, %d] (text length: %d)", context, start, end, textLen)
	}
	return ""
}
