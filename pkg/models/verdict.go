package models

// The types in this file mirror the email_triage_v2 JSON Schema exactly,
// field names included (the schema uses flat lowercase keys). The LLM emits
// this shape; the validation pipeline accepts it only after all four stages
// pass.

// KeywordInText is a keyword the LLM selected from the candidate list,
// anchored to the text. CandidateID must exist in the input candidates —
// the LLM is not allowed to invent keywords.
type KeywordInText struct {
	CandidateID string  `json:"candidateid"`
	Lemma       string  `json:"lemma"`
	Count       int     `json:"count"`
	Spans       [][]int `json:"spans,omitempty"`
}

// EvidenceItem is a short quote from the email supporting a topic. The quote
// must occur in the canonical body (checked by the evidence-presence verifier).
type EvidenceItem struct {
	Quote string `json:"quote"`
	Span  []int  `json:"span,omitempty"`
}

// TopicResult is one topic classification with anchored keywords and evidence.
type TopicResult struct {
	LabelID        Topic           `json:"labelid"`
	Confidence     float64         `json:"confidence"`
	KeywordsInText []KeywordInText `json:"keywordsintext"`
	Evidence       []EvidenceItem  `json:"evidence"`
}

// SentimentResult is the single-label sentiment classification.
type SentimentResult struct {
	Value      Sentiment `json:"value"`
	Confidence float64   `json:"confidence"`
}

// PriorityResult is the single-label priority classification. Signals are
// short phrases explaining why the priority was assigned (max 6).
type PriorityResult struct {
	Value      Priority `json:"value"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals"`
}

// EmailTriageResponse is the complete structured verdict from the LLM,
// conforming to email_triage_v2. Topics are multi-label (1-5); at least one
// topic is always present (UNKNOWNTOPIC when nothing else applies).
type EmailTriageResponse struct {
	DictionaryVersion int             `json:"dictionaryversion"`
	Sentiment         SentimentResult `json:"sentiment"`
	Priority          PriorityResult  `json:"priority"`
	Topics            []TopicResult   `json:"topics"`
}
