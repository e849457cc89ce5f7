package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/schema"
)

// testBody is 55 bytes long; the spans below are offsets into it.
const testBody = "Ho un problema con la fattura di marzo, importo errato."

func validResponse() *models.EmailTriageResponse {
	return &models.EmailTriageResponse{
		DictionaryVersion: 3,
		Sentiment:         models.SentimentResult{Value: models.SentimentNegative, Confidence: 0.85},
		Priority: models.PriorityResult{
			Value:      models.PriorityHigh,
			Confidence: 0.8,
			Signals:    []string{"importo errato"},
		},
		Topics: []models.TopicResult{{
			LabelID:    models.TopicFatturazione,
			Confidence: 0.92,
			KeywordsInText: []models.KeywordInText{{
				CandidateID: "kw_001",
				Lemma:       "fattura",
				Count:       1,
				Spans:       [][]int{{22, 29}},
			}},
			Evidence: []models.EvidenceItem{{
				Quote: "la fattura di marzo",
				Span:  []int{19, 38},
			}},
		}},
	}
}

func validRequest() *models.TriageRequest {
	return &models.TriageRequest{
		Email: models.EmailDocument{
			UID:               "0042",
			SubjectCanonical:  "Problema con la fattura",
			BodyTextCanonical: testBody,
		},
		CandidateKeywords: []models.CandidateKeyword{
			{CandidateID: "kw_001", Term: "fattura", Lemma: "fattura", Count: 1, Score: 0.91},
			{CandidateID: "kw_002", Term: "importo", Lemma: "importo", Count: 1, Score: 0.55},
		},
		DictionaryVersion: 3,
	}
}

func marshalResponse(t *testing.T, resp *models.EmailTriageResponse) string {
	t.Helper()
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func responseMap(t *testing.T, resp *models.EmailTriageResponse) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(marshalResponse(t, resp)), &m))
	return m
}

func mustDocument(t *testing.T) *schema.Document {
	t.Helper()
	doc, err := schema.Embedded()
	require.NoError(t, err)
	return doc
}

func newTestPipeline(t *testing.T, settings config.ValidationSettings) *Pipeline {
	t.Helper()
	return NewPipeline(mustDocument(t), settings)
}

func boolPtr(b bool) *bool { return &b }
