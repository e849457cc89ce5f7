// Package pii applies span-based redaction to annotated email text.
//
// The upstream NER pass annotates PII spans without altering the body; this
// package replaces those spans with [REDACTED_<TYPE>] markers on the fly.
// Two call sites exist: before prompt assembly when the model is external
// (redact-for-LLM, off by default for self-hosted Ollama), and before
// persisting a request copy to the dead letter queue (redact-for-storage,
// on by default).
//
// All span offsets are byte offsets into the canonical UTF-8 body, as
// produced upstream. Invalid or out-of-bounds spans are skipped with a
// warning; redaction never fails a request.
package pii

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/mailops/triaged/pkg/models"
)

// Redactor replaces annotated PII spans with typed markers. Created once at
// startup (singleton); stateless and safe for concurrent use.
type Redactor struct {
	types map[string]struct{} // empty set means redact every type
}

// NewRedactor creates a redactor limited to the given entity types.
// An empty list means all types are redacted.
func NewRedactor(types []string) *Redactor {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return &Redactor{types: set}
}

func (r *Redactor) shouldRedact(entityType string) bool {
	if len(r.types) == 0 {
		return true
	}
	_, ok := r.types[entityType]
	return ok
}

// Redact replaces each in-scope annotated span with [REDACTED_<TYPE>].
// Entities are processed in reverse start order so earlier offsets stay
// valid while the text is rewritten in place.
func (r *Redactor) Redact(text string, entities []models.PiiEntity) string {
	if len(entities) == 0 {
		return text
	}

	ordered := make([]models.PiiEntity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SpanStart > ordered[j].SpanStart
	})

	redacted := text
	count := 0
	for _, e := range ordered {
		if !r.shouldRedact(e.Type) {
			continue
		}
		if e.SpanStart < 0 || e.SpanEnd > len(redacted) || e.SpanStart >= e.SpanEnd {
			slog.Warn("Skipping PII entity with out-of-bounds span",
				"entity_type", e.Type,
				"span_start", e.SpanStart,
				"span_end", e.SpanEnd,
				"text_length", len(redacted))
			continue
		}
		marker := "[REDACTED_" + e.Type + "]"
		redacted = redacted[:e.SpanStart] + marker + redacted[e.SpanEnd:]
		count++
	}

	if count > 0 {
		slog.Debug("PII redaction complete",
			"total_entities", len(entities),
			"redacted_count", count,
			"original_length", len(text),
			"redacted_length", len(redacted))
	}

	return redacted
}

// FilterCandidates drops candidate keywords whose term or lemma equals the
// textual content of an annotated PII span (case-insensitive). The keyword
// extractor should already be PII-aware; this is a second line of defense
// for fragments that slipped through. The full entity list is consulted,
// not just the configured redaction types.
func (r *Redactor) FilterCandidates(
	candidates []models.CandidateKeyword,
	entities []models.PiiEntity,
	body string,
) []models.CandidateKeyword {
	if len(entities) == 0 {
		return candidates
	}

	piiTerms := make(map[string]struct{})
	for _, e := range entities {
		if e.SpanStart >= 0 && e.SpanStart < e.SpanEnd && e.SpanEnd <= len(body) {
			term := strings.ToLower(strings.TrimSpace(body[e.SpanStart:e.SpanEnd]))
			if term != "" {
				piiTerms[term] = struct{}{}
			}
		}
	}
	if len(piiTerms) == 0 {
		return candidates
	}

	filtered := make([]models.CandidateKeyword, 0, len(candidates))
	removed := 0
	for _, c := range candidates {
		termLower := strings.ToLower(strings.TrimSpace(c.Term))
		lemmaLower := strings.ToLower(strings.TrimSpace(c.Lemma))
		if _, hit := piiTerms[termLower]; hit {
			removed++
			continue
		}
		if _, hit := piiTerms[lemmaLower]; hit {
			removed++
			continue
		}
		filtered = append(filtered, c)
	}

	if removed > 0 {
		slog.Info("Filtered PII from candidate keywords",
			"original_count", len(candidates),
			"removed_count", removed,
			"remaining_count", len(filtered))
	}

	return filtered
}

// RedactRequest returns a copy of the request whose email body and subject
// carry redaction markers, for GDPR-safe persistence (DLQ entries keep a
// full request copy). The in-flight request is never modified; entity
// annotations are kept as an audit record, their spans referring to the
// pre-redaction body.
func (r *Redactor) RedactRequest(req *models.TriageRequest) *models.TriageRequest {
	if req == nil {
		return nil
	}
	clone := *req
	clone.Email.BodyTextCanonical = r.Redact(req.Email.BodyTextCanonical, req.Email.PiiEntities)
	// Subjects carry no span annotations; entities anchored to the body
	// do not apply, so the subject passes through unchanged.
	return &clone
}

// replacement pairs the surface text of an annotated span with its marker.
type replacement struct {
	surface string
	marker  string
}

// RedactResult returns a copy of the result whose evidence quotes and
// priority signals carry redaction markers, for persistence. Quotes are
// verbatim body excerpts whose own offsets differ from the body's, so the
// entity surface text (the body under each span) is matched textually
// instead of by span. The in-flight result is never modified.
func (r *Redactor) RedactResult(result *models.TriageResult, email *models.EmailDocument) *models.TriageResult {
	if result == nil || email == nil {
		return result
	}
	reps := r.surfaceMarkers(email.BodyTextCanonical, email.PiiEntities)
	if len(reps) == 0 {
		return result
	}

	clone := *result
	clone.TriageResponse.Topics = make([]models.TopicResult, len(result.TriageResponse.Topics))
	copy(clone.TriageResponse.Topics, result.TriageResponse.Topics)
	for i := range clone.TriageResponse.Topics {
		topic := &clone.TriageResponse.Topics[i]
		if len(topic.Evidence) == 0 {
			continue
		}
		evidence := make([]models.EvidenceItem, len(topic.Evidence))
		copy(evidence, topic.Evidence)
		for j := range evidence {
			evidence[j].Quote = applyMarkers(evidence[j].Quote, reps)
		}
		topic.Evidence = evidence
	}

	if len(result.TriageResponse.Priority.Signals) > 0 {
		signals := make([]string, len(result.TriageResponse.Priority.Signals))
		for i, s := range result.TriageResponse.Priority.Signals {
			signals[i] = applyMarkers(s, reps)
		}
		clone.TriageResponse.Priority.Signals = signals
	}
	return &clone
}

// surfaceMarkers extracts the in-scope entity surfaces, longest first so a
// surface containing another is replaced whole. Duplicate surfaces keep the
// first entity's type.
func (r *Redactor) surfaceMarkers(body string, entities []models.PiiEntity) []replacement {
	seen := make(map[string]struct{}, len(entities))
	reps := make([]replacement, 0, len(entities))
	for _, e := range entities {
		if !r.shouldRedact(e.Type) {
			continue
		}
		if e.SpanStart < 0 || e.SpanEnd > len(body) || e.SpanStart >= e.SpanEnd {
			continue
		}
		surface := body[e.SpanStart:e.SpanEnd]
		if _, dup := seen[surface]; dup {
			continue
		}
		seen[surface] = struct{}{}
		reps = append(reps, replacement{surface: surface, marker: "[REDACTED_" + e.Type + "]"})
	}
	sort.SliceStable(reps, func(i, j int) bool {
		return len(reps[i].surface) > len(reps[j].surface)
	})
	return reps
}

func applyMarkers(text string, reps []replacement) string {
	for _, rep := range reps {
		text = strings.ReplaceAll(text, rep.surface, rep.marker)
	}
	return text
}
