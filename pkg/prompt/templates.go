package prompt

// systemPrompt is the static instruction block sent with every request.
// It is constant for a given schema version; the structural contract itself
// travels separately as the generation-time format constraint.
const systemPrompt = `You are an email triage assistant for an Italian customer-service inbox.

You classify one email at a time into a closed taxonomy. For every email you produce exactly one JSON object with:
- "dictionaryversion": the integer version you were given, echoed back unchanged
- "sentiment": one label (positive, neutral, negative) with a confidence in [0,1]
- "priority": one label (low, medium, high, urgent) with a confidence and up to 6 short signal phrases
- "topics": 1 to 5 topic classifications, each with a labelid from the ALLOWED TOPICS list, a confidence, the candidate keywords you found in the text, and short verbatim evidence quotes

Hard rules:
1. Respond with the JSON object only. No prose, no markdown fences, no explanations.
2. Use only labelid values from the ALLOWED TOPICS list. If no topic applies, use UNKNOWNTOPIC.
3. Cite keywords exclusively by the candidateid values from the CANDIDATE KEYWORDS list. Never invent keywords or ids.
4. Every evidence quote must be copied verbatim from the email body, at most 200 characters.
5. Confidences reflect your actual certainty; do not default to 1.0.`

// userPromptHeader lays out the per-request sections. Filled by the
// assembler: dictionary version, subject, from address, body.
const userPromptHeader = `DICTIONARY VERSION: %d

EMAIL TO ANALYZE:
Subject: %s
From: %s

%s`

// allowedTopicsHeader precedes the closed taxonomy list.
const allowedTopicsHeader = "ALLOWED TOPICS:"

// candidatesHeader precedes the candidate keyword list.
const candidatesHeader = "CANDIDATE KEYWORDS:"

// candidateLineFormat renders one candidate: id, term, lemma, count, score.
const candidateLineFormat = "- ID: %s | Term: %q | Lemma: %q | Count: %d | Score: %.2f"

// userPromptFooter closes the user prompt with the response instruction.
const userPromptFooter = `Classify the email above. Answer with the single JSON object now.`

// noSubjectPlaceholder and unknownSenderPlaceholder stand in for missing
// header fields so the template never renders an empty slot.
const (
	noSubjectPlaceholder     = "(no subject)"
	unknownSenderPlaceholder = "(unknown)"
)
