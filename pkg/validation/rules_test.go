package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailops/triaged/pkg/models"
)

func requireRuleError(t *testing.T, err error) *RuleError {
	t.Helper()
	require.Error(t, err)
	var rerr *RuleError
	require.ErrorAs(t, err, &rerr)
	return rerr
}

func TestCheckRules_ValidResponse(t *testing.T) {
	assert.NoError(t, CheckRules(validResponse(), validRequest()))
}

func TestCheckRules_DictionaryVersionMismatch(t *testing.T) {
	resp := validResponse()
	resp.DictionaryVersion = 4

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "dictionary_version_match", rerr.Rule)
	assert.Equal(t, "dictionaryversion", rerr.FieldPath)
	assert.Equal(t, "4", rerr.InvalidValue)
	assert.Equal(t, []string{"3"}, rerr.Expected)
	assert.Contains(t, rerr.Error(), "response has 4, expected 3")

	details := rerr.Details()
	assert.Equal(t, "dictionary_version_match", details["rule_name"])
	assert.Equal(t, "dictionaryversion", details["field_path"])
}

func TestCheckRules_UnknownTopicLabel(t *testing.T) {
	resp := validResponse()
	resp.Topics[0].LabelID = "SPAM"

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "topic_label_in_enum", rerr.Rule)
	assert.Equal(t, "topics[0].labelid", rerr.FieldPath)
	assert.Equal(t, "SPAM", rerr.InvalidValue)

	// The taxonomy is listed alphabetically.
	require.Len(t, rerr.Expected, 10)
	assert.Equal(t, "APPUNTAMENTO", rerr.Expected[0])
	assert.Contains(t, rerr.Expected, "UNKNOWNTOPIC")
}

func TestCheckRules_TopicIndexInFieldPath(t *testing.T) {
	resp := validResponse()
	resp.Topics = append(resp.Topics, models.TopicResult{
		LabelID:        "NOTATOPIC",
		Confidence:     0.5,
		KeywordsInText: []models.KeywordInText{},
		Evidence:       []models.EvidenceItem{},
	})

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "topics[1].labelid", rerr.FieldPath)
}

func TestCheckRules_InventedCandidateID(t *testing.T) {
	resp := validResponse()
	resp.Topics[0].KeywordsInText[0].CandidateID = "kw_999"

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "candidateid_exists_in_input", rerr.Rule)
	assert.Equal(t, "topics[0].keywordsintext[0].candidateid", rerr.FieldPath)
	assert.Equal(t, "kw_999", rerr.InvalidValue)

	// The candidate set is too large to enumerate in details.
	assert.Nil(t, rerr.Expected)
	assert.NotContains(t, rerr.Details(), "expected_values")
}

func TestCheckRules_UnknownSentiment(t *testing.T) {
	resp := validResponse()
	resp.Sentiment.Value = "angry"

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "sentiment_in_enum", rerr.Rule)
	assert.Equal(t, "sentiment.value", rerr.FieldPath)
	assert.Equal(t, []string{"negative", "neutral", "positive"}, rerr.Expected)
}

func TestCheckRules_UnknownPriority(t *testing.T) {
	resp := validResponse()
	resp.Priority.Value = "critical"

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "priority_in_enum", rerr.Rule)
	assert.Equal(t, "priority.value", rerr.FieldPath)
	assert.Equal(t, []string{"high", "low", "medium", "urgent"}, rerr.Expected)
}

func TestCheckRules_FirstViolationWins(t *testing.T) {
	resp := validResponse()
	resp.DictionaryVersion = 9
	resp.Topics[0].LabelID = "SPAM"
	resp.Sentiment.Value = "angry"

	rerr := requireRuleError(t, CheckRules(resp, validRequest()))
	assert.Equal(t, "dictionary_version_match", rerr.Rule)
}
