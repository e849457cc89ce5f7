package models

// Topic is a label from the closed topic taxonomy. The LLM must pick from
// this set; anything else is rejected by the business-rule validator.
type Topic string

const (
	TopicFatturazione      Topic = "FATTURAZIONE"
	TopicAssistenzaTecnica Topic = "ASSISTENZATECNICA"
	TopicReclamo           Topic = "RECLAMO"
	TopicInfoCommerciali   Topic = "INFOCOMMERCIALI"
	TopicDocumenti         Topic = "DOCUMENTI"
	TopicAppuntamento      Topic = "APPUNTAMENTO"
	TopicContratto         Topic = "CONTRATTO"
	TopicGaranzia          Topic = "GARANZIA"
	TopicSpedizione        Topic = "SPEDIZIONE"
	// TopicUnknown is the catch-all when no taxonomy label applies.
	TopicUnknown Topic = "UNKNOWNTOPIC"
)

// AllTopics returns the full closed taxonomy in canonical order.
func AllTopics() []Topic {
	return []Topic{
		TopicFatturazione,
		TopicAssistenzaTecnica,
		TopicReclamo,
		TopicInfoCommerciali,
		TopicDocumenti,
		TopicAppuntamento,
		TopicContratto,
		TopicGaranzia,
		TopicSpedizione,
		TopicUnknown,
	}
}

// IsValid checks if the topic belongs to the closed taxonomy
func (t Topic) IsValid() bool {
	switch t {
	case TopicFatturazione,
		TopicAssistenzaTecnica,
		TopicReclamo,
		TopicInfoCommerciali,
		TopicDocumenti,
		TopicAppuntamento,
		TopicContratto,
		TopicGaranzia,
		TopicSpedizione,
		TopicUnknown:
		return true
	default:
		return false
	}
}

// Sentiment is the single-label sentiment classification
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// AllSentiments returns the closed sentiment set.
func AllSentiments() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// IsValid checks if the sentiment is valid
func (s Sentiment) IsValid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// Priority is the single-label priority classification
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AllPriorities returns the closed priority set.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// IsValid checks if the priority is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Strategy names a retry-ladder rung. Persisted in RetryMetadata.
type Strategy string

const (
	// StrategyStandard retries with the unmodified request.
	StrategyStandard Strategy = "standard"
	// StrategyShrink retries with reduced body and candidate budgets.
	StrategyShrink Strategy = "shrink"
	// StrategyFallback retries on an alternate model in normal mode.
	StrategyFallback Strategy = "fallback"
)

// IsValid checks if the strategy name is valid
func (s Strategy) IsValid() bool {
	return s == StrategyStandard || s == StrategyShrink || s == StrategyFallback
}
