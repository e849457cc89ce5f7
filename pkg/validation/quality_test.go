package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailops/triaged/pkg/models"
)

func TestQualityCheck_CleanResponse(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	assert.Empty(t, checker.Check(validResponse()))
}

func TestQualityCheck_LowConfidenceWarnings(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Sentiment.Confidence = 0.1
	resp.Priority.Confidence = 0.15
	resp.Topics[0].Confidence = 0.05

	warnings := checker.Check(resp)
	require.Len(t, warnings, 3)
	assert.Equal(t, "Low sentiment confidence: 0.100 (threshold: 0.2)", warnings[0])
	assert.Equal(t, "Low priority confidence: 0.150 (threshold: 0.2)", warnings[1])
	assert.Equal(t, "Low confidence for topic 'FATTURAZIONE' at index 0: 0.050 (threshold: 0.2)", warnings[2])
}

func TestQualityCheck_ConfidenceAtThresholdPasses(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Sentiment.Confidence = 0.2
	resp.Priority.Confidence = 0.2
	resp.Topics[0].Confidence = 0.2

	assert.Empty(t, checker.Check(resp))
}

func TestQualityCheck_DuplicateTopic(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Topics = append(resp.Topics, resp.Topics[0])

	warnings := checker.Check(resp)
	assert.Contains(t, warnings, "Duplicate topic 'FATTURAZIONE' at index 1")
}

func TestQualityCheck_DuplicateKeywordInTopic(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	kws := resp.Topics[0].KeywordsInText
	resp.Topics[0].KeywordsInText = append(kws, kws[0])

	warnings := checker.Check(resp)
	assert.Contains(t, warnings,
		"Duplicate keyword candidateid 'kw_001' in topic 'FATTURAZIONE' (topic index 0, keyword index 1)")
}

func TestQualityCheck_DuplicateEvidenceNormalized(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Topics[0].Evidence = []models.EvidenceItem{
		{Quote: "La Fattura di Marzo"},
		{Quote: "  la fattura di marzo  "},
	}

	warnings := checker.Check(resp)
	assert.Contains(t, warnings,
		"Duplicate evidence quote in topic 'FATTURAZIONE' (topic index 0, evidence index 1)")
}

func TestQualityCheck_MissingKeywordsAndEvidence(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Topics[0].LabelID = models.TopicReclamo
	resp.Topics[0].KeywordsInText = nil
	resp.Topics[0].Evidence = nil

	warnings := checker.Check(resp)
	require.Len(t, warnings, 2)
	assert.Equal(t, "Topic 'RECLAMO' at index 0 has no keywords", warnings[0])
	assert.Equal(t, "Topic 'RECLAMO' at index 0 has no evidence", warnings[1])
}

func TestQualityCheck_NoPrioritySignals(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}
	resp := validResponse()
	resp.Priority.Signals = nil

	warnings := checker.Check(resp)
	assert.Contains(t, warnings, "Priority has no signals (expected 1-6 signals)")
}

func TestQualityCheck_LongQuoteBoundary(t *testing.T) {
	checker := QualityChecker{MinConfidence: 0.2}

	resp := validResponse()
	resp.Topics[0].Evidence[0] = models.EvidenceItem{Quote: strings.Repeat("a", 180)}
	assert.Empty(t, checker.Check(resp))

	resp.Topics[0].Evidence[0] = models.EvidenceItem{Quote: strings.Repeat("a", 181)}
	warnings := checker.Check(resp)
	require.Len(t, warnings, 1)
	assert.Equal(t,
		"Evidence quote is very long (181 chars) in topic 'FATTURAZIONE' (topic index 0, evidence index 0)",
		warnings[0])
}
