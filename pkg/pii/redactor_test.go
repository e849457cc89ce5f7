package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailops/triaged/pkg/models"
)

func entity(typ string, start, end int) models.PiiEntity {
	return models.PiiEntity{
		Type:       typ,
		SpanStart:  start,
		SpanEnd:    end,
		Confidence: 0.95,
	}
}

func TestRedactSingleSpan(t *testing.T) {
	r := NewRedactor(nil)
	body := "My email: user@example.com."

	out := r.Redact(body, []models.PiiEntity{entity("EMAIL", 10, 26)})
	assert.Equal(t, "My email: [REDACTED_EMAIL].", out)
}

func TestRedactMultipleSpansReverseOrder(t *testing.T) {
	r := NewRedactor(nil)
	//       0123456789012345678901234567890
	body := "Call 0612345678 or mail a@b.it now"

	out := r.Redact(body, []models.PiiEntity{
		entity("PHONE_IT", 5, 15),
		entity("EMAIL", 24, 30),
	})
	assert.Equal(t, "Call [REDACTED_PHONE_IT] or mail [REDACTED_EMAIL] now", out)
}

func TestRedactEntityOrderIrrelevant(t *testing.T) {
	r := NewRedactor(nil)
	body := "Call 0612345678 or mail a@b.it now"

	// Same spans, reversed input order: the redactor sorts internally.
	out := r.Redact(body, []models.PiiEntity{
		entity("EMAIL", 24, 30),
		entity("PHONE_IT", 5, 15),
	})
	assert.Equal(t, "Call [REDACTED_PHONE_IT] or mail [REDACTED_EMAIL] now", out)
}

func TestRedactRespectsTypeSet(t *testing.T) {
	r := NewRedactor([]string{"EMAIL"})
	body := "Call 0612345678 or mail a@b.it now"

	out := r.Redact(body, []models.PiiEntity{
		entity("PHONE_IT", 5, 15),
		entity("EMAIL", 24, 30),
	})
	// Phone type not in set: left in place.
	assert.Equal(t, "Call 0612345678 or mail [REDACTED_EMAIL] now", out)
}

func TestRedactSkipsInvalidSpans(t *testing.T) {
	r := NewRedactor(nil)
	body := "short body"

	tests := []struct {
		name string
		e    models.PiiEntity
	}{
		{"negative start", entity("NAME", -1, 4)},
		{"end beyond body", entity("NAME", 2, 500)},
		{"inverted span", entity("NAME", 6, 3)},
		{"empty span", entity("NAME", 4, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, body, r.Redact(body, []models.PiiEntity{tt.e}))
		})
	}
}

func TestRedactNoEntities(t *testing.T) {
	r := NewRedactor(nil)
	assert.Equal(t, "unchanged", r.Redact("unchanged", nil))
}

func TestFilterCandidatesDropsPIITerms(t *testing.T) {
	r := NewRedactor(nil)
	//       0         1         2
	//       0123456789012345678901234567
	body := "Contact Mario Rossi about it"

	candidates := []models.CandidateKeyword{
		{CandidateID: "c1", Term: "contact", Lemma: "contact", Count: 1},
		{CandidateID: "c2", Term: "Mario Rossi", Lemma: "mario rossi", Count: 1},
		{CandidateID: "c3", Term: "about", Lemma: "about", Count: 1},
	}

	filtered := r.FilterCandidates(candidates, []models.PiiEntity{entity("NAME", 8, 19)}, body)
	require.Len(t, filtered, 2)
	assert.Equal(t, "c1", filtered[0].CandidateID)
	assert.Equal(t, "c3", filtered[1].CandidateID)
}

func TestFilterCandidatesMatchIsCaseInsensitive(t *testing.T) {
	r := NewRedactor(nil)
	body := "ID IT60X0542811101000000123456 given"

	candidates := []models.CandidateKeyword{
		{CandidateID: "c1", Term: "it60x0542811101000000123456", Lemma: "iban", Count: 1},
	}

	filtered := r.FilterCandidates(candidates, []models.PiiEntity{entity("IBAN", 3, 30)}, body)
	assert.Empty(t, filtered)
}

func TestFilterCandidatesNoEntitiesPassesThrough(t *testing.T) {
	r := NewRedactor(nil)
	candidates := []models.CandidateKeyword{
		{CandidateID: "c1", Term: "fattura", Lemma: "fattura", Count: 2},
	}
	assert.Equal(t, candidates, r.FilterCandidates(candidates, nil, "body"))
}

func TestFilterCandidatesIgnoresBadSpans(t *testing.T) {
	r := NewRedactor(nil)
	candidates := []models.CandidateKeyword{
		{CandidateID: "c1", Term: "fattura", Lemma: "fattura", Count: 2},
	}
	out := r.FilterCandidates(candidates, []models.PiiEntity{entity("NAME", 50, 90)}, "tiny")
	assert.Equal(t, candidates, out)
}

func TestRedactRequestLeavesOriginalIntact(t *testing.T) {
	r := NewRedactor(nil)
	req := &models.TriageRequest{
		Email: models.EmailDocument{
			UID:               "u-1",
			BodyTextCanonical: "My email: user@example.com.",
			PiiEntities:       []models.PiiEntity{entity("EMAIL", 10, 26)},
		},
		DictionaryVersion: 1,
		CandidateKeywords: []models.CandidateKeyword{
			{CandidateID: "c1", Term: "email", Lemma: "email", Count: 1},
		},
	}

	clone := r.RedactRequest(req)

	assert.Equal(t, "My email: [REDACTED_EMAIL].", clone.Email.BodyTextCanonical)
	assert.Equal(t, "My email: user@example.com.", req.Email.BodyTextCanonical)
	// Annotations survive as an audit record.
	assert.Len(t, clone.Email.PiiEntities, 1)
}

func TestRedactRequestNil(t *testing.T) {
	r := NewRedactor(nil)
	assert.Nil(t, r.RedactRequest(nil))
}

func TestRedactResultRewritesQuotesAndSignals(t *testing.T) {
	r := NewRedactor(nil)
	//        0         1         2         3
	//        0123456789012345678901234567890123456789
	email := &models.EmailDocument{
		UID:               "u-2",
		BodyTextCanonical: "Sono Mario Rossi, vorrei il rimborso ora",
		PiiEntities:       []models.PiiEntity{entity("NAME", 5, 16)},
	}
	result := &models.TriageResult{
		TriageResponse: models.EmailTriageResponse{
			Topics: []models.TopicResult{{
				LabelID:    models.TopicReclamo,
				Confidence: 0.9,
				Evidence: []models.EvidenceItem{
					{Quote: "Sono Mario Rossi, vorrei il rimborso", Span: []int{0, 36}},
				},
			}},
			Priority: models.PriorityResult{
				Value:      models.PriorityHigh,
				Confidence: 0.8,
				Signals:    []string{"Mario Rossi chiede il rimborso"},
			},
		},
		RequestUID: "u-2",
	}

	clone := r.RedactResult(result, email)

	assert.Equal(t, "Sono [REDACTED_NAME], vorrei il rimborso",
		clone.TriageResponse.Topics[0].Evidence[0].Quote)
	assert.Equal(t, "[REDACTED_NAME] chiede il rimborso",
		clone.TriageResponse.Priority.Signals[0])
	// The in-flight result keeps the verbatim quote.
	assert.Equal(t, "Sono Mario Rossi, vorrei il rimborso",
		result.TriageResponse.Topics[0].Evidence[0].Quote)
	assert.Equal(t, "Mario Rossi chiede il rimborso",
		result.TriageResponse.Priority.Signals[0])
}

func TestRedactResultLongestSurfaceWins(t *testing.T) {
	r := NewRedactor(nil)
	//        0         1         2
	//        012345678901234567890123456
	email := &models.EmailDocument{
		BodyTextCanonical: "Mario e Mario Rossi scrivono",
		PiiEntities: []models.PiiEntity{
			entity("NAME", 0, 5),
			entity("NAME", 8, 19),
		},
	}
	result := &models.TriageResult{
		TriageResponse: models.EmailTriageResponse{
			Topics: []models.TopicResult{{
				LabelID: models.TopicUnknown,
				Evidence: []models.EvidenceItem{
					{Quote: "Mario Rossi scrivono"},
				},
			}},
		},
	}

	clone := r.RedactResult(result, email)
	// The full name matches before the bare first name can split it.
	assert.Equal(t, "[REDACTED_NAME] scrivono",
		clone.TriageResponse.Topics[0].Evidence[0].Quote)
}

func TestRedactResultNoEntitiesReturnsSame(t *testing.T) {
	r := NewRedactor(nil)
	result := &models.TriageResult{RequestUID: "u-3"}
	email := &models.EmailDocument{BodyTextCanonical: "pulito"}
	assert.Same(t, result, r.RedactResult(result, email))
}

func TestRedactResultRespectsTypeSet(t *testing.T) {
	r := NewRedactor([]string{"EMAIL"})
	//        0         1
	//        012345678901234567
	email := &models.EmailDocument{
		BodyTextCanonical: "Mario Rossi saluta",
		PiiEntities:       []models.PiiEntity{entity("NAME", 0, 11)},
	}
	result := &models.TriageResult{
		TriageResponse: models.EmailTriageResponse{
			Topics: []models.TopicResult{{
				Evidence: []models.EvidenceItem{{Quote: "Mario Rossi saluta"}},
			}},
		},
	}
	clone := r.RedactResult(result, email)
	assert.Equal(t, "Mario Rossi saluta", clone.TriageResponse.Topics[0].Evidence[0].Quote)
}
