package validation

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mailops/triaged/pkg/models"
)

// CheckRules is stage 3: enforce the closed-world constraints the schema
// cannot express. Rules run in a fixed order and the first violation wins:
// dictionary version, topic labels, candidate ids, sentiment, priority.
func CheckRules(resp *models.EmailTriageResponse, req *models.TriageRequest) error {
	if resp.DictionaryVersion != req.DictionaryVersion {
		return &RuleError{
			Rule: "dictionary_version_match",
			Msg: fmt.Sprintf("dictionary version mismatch: response has %d, expected %d",
				resp.DictionaryVersion, req.DictionaryVersion),
			InvalidValue: strconv.Itoa(resp.DictionaryVersion),
			Expected:     []string{strconv.Itoa(req.DictionaryVersion)},
			FieldPath:    "dictionaryversion",
		}
	}

	for i, topic := range resp.Topics {
		if !topic.LabelID.IsValid() {
			return &RuleError{
				Rule:         "topic_label_in_enum",
				Msg:          fmt.Sprintf("topic labelid %q is not in the taxonomy", topic.LabelID),
				InvalidValue: string(topic.LabelID),
				Expected:     topicEnumValues(),
				FieldPath:    fmt.Sprintf("topics[%d].labelid", i),
			}
		}
	}

	// The LLM may only reference candidates it was given; an unknown id
	// means it invented a keyword.
	known := make(map[string]struct{}, len(req.CandidateKeywords))
	for _, c := range req.CandidateKeywords {
		known[c.CandidateID] = struct{}{}
	}
	for ti, topic := range resp.Topics {
		for ki, kw := range topic.KeywordsInText {
			if _, ok := known[kw.CandidateID]; !ok {
				return &RuleError{
					Rule:         "candidateid_exists_in_input",
					Msg:          fmt.Sprintf("keyword candidateid %q not found in input candidates", kw.CandidateID),
					InvalidValue: kw.CandidateID,
					FieldPath:    fmt.Sprintf("topics[%d].keywordsintext[%d].candidateid", ti, ki),
				}
			}
		}
	}

	// Redundant with the schema enums, but yields precise rule details.
	if !resp.Sentiment.Value.IsValid() {
		return &RuleError{
			Rule:         "sentiment_in_enum",
			Msg:          fmt.Sprintf("sentiment value %q is not a known sentiment", resp.Sentiment.Value),
			InvalidValue: string(resp.Sentiment.Value),
			Expected:     sentimentEnumValues(),
			FieldPath:    "sentiment.value",
		}
	}
	if !resp.Priority.Value.IsValid() {
		return &RuleError{
			Rule:         "priority_in_enum",
			Msg:          fmt.Sprintf("priority value %q is not a known priority", resp.Priority.Value),
			InvalidValue: string(resp.Priority.Value),
			Expected:     priorityEnumValues(),
			FieldPath:    "priority.value",
		}
	}
	return nil
}

func topicEnumValues() []string {
	topics := models.AllTopics()
	vals := make([]string, 0, len(topics))
	for _, t := range topics {
		vals = append(vals, string(t))
	}
	sort.Strings(vals)
	return vals
}

func sentimentEnumValues() []string {
	sentiments := models.AllSentiments()
	vals := make([]string, 0, len(sentiments))
	for _, s := range sentiments {
		vals = append(vals, string(s))
	}
	sort.Strings(vals)
	return vals
}

func priorityEnumValues() []string {
	priorities := models.AllPriorities()
	vals := make([]string, 0, len(priorities))
	for _, p := range priorities {
		vals = append(vals, string(p))
	}
	sort.Strings(vals)
	return vals
}
