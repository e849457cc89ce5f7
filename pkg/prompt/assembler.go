// Package prompt assembles the system and user prompts for one triage
// request. Assembly is pure: the same request and mode always produce the
// same prompts. Templates and the response schema are bound once at startup.
package prompt

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/pii"
	"github.com/mailops/triaged/pkg/schema"
)

// Mode selects the size budgets for one assembly pass. Shrink mode is the
// retry engine's second rung: shorter body, fewer candidates.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeShrink Mode = "shrink"
)

// Metadata describes what assembly did to the input. It feeds the audit
// trail (truncation flag, candidate count) and the retry engine's
// warnings.
type Metadata struct {
	TruncationApplied   bool
	OriginalBodyLength  int
	TruncatedBodyLength int
	FinalBodyLength     int
	RedactionApplied    bool
	PiiEntitiesKept     int
	CandidatesCount     int
	ShrinkMode          bool
	SystemPromptLength  int
	UserPromptLength    int
	ApproxPromptTokens  int
}

// Prompt is one assembled request: both prompt halves, the structural
// constraint for the gateway, and the assembly metadata.
type Prompt struct {
	System   string
	User     string
	Schema   map[string]any
	Metadata Metadata
}

// FullText returns the combined prompt as sent to a single-prompt backend.
func (p *Prompt) FullText() string {
	return p.System + "\n\n" + p.User
}

// Assembler renders triage requests into prompts. Created once at startup;
// stateless and safe for concurrent use.
type Assembler struct {
	limits   config.PromptSettings
	redact   bool
	redactor *pii.Redactor
	doc      *schema.Document
}

// NewAssembler creates an assembler with fixed budgets and an optional
// redaction pass. Panics if doc is nil — the schema is bound at startup and
// a missing one is a wiring bug.
func NewAssembler(limits config.PromptSettings, redactForLLM bool, redactor *pii.Redactor, doc *schema.Document) *Assembler {
	if doc == nil {
		panic("prompt.NewAssembler: schema document must not be nil")
	}
	if redactor == nil {
		redactor = pii.NewRedactor(nil)
	}
	return &Assembler{
		limits:   limits,
		redact:   redactForLLM,
		redactor: redactor,
		doc:      doc,
	}
}

// Assemble builds the prompts for one request.
//
// Steps: truncate the body at a sentence boundary, fix up PII spans, apply
// optional redaction, select top-N candidates (score-descending, stable),
// render the template, attach the schema.
func (a *Assembler) Assemble(req *models.TriageRequest, mode Mode) *Prompt {
	bodyLimit, topN := a.limitsFor(mode)

	originalBody := req.Email.BodyTextCanonical
	truncatedBody := TruncateAtSentenceBoundary(originalBody, bodyLimit)
	truncationApplied := len(truncatedBody) < len(originalBody)

	adjustedPii := AdjustPiiSpans(req.Email.PiiEntities, len(truncatedBody))

	finalBody := truncatedBody
	if a.redact {
		finalBody = a.redactor.Redact(truncatedBody, adjustedPii)
	}

	candidates := selectTopN(req.CandidateKeywords, topN)
	if a.redact && len(adjustedPii) > 0 {
		// PII term content is read from the pre-redaction body, where the
		// spans still point at the original characters.
		candidates = a.redactor.FilterCandidates(candidates, adjustedPii, truncatedBody)
	}

	user := a.renderUser(req, finalBody, candidates)

	md := Metadata{
		TruncationApplied:   truncationApplied,
		OriginalBodyLength:  len(originalBody),
		TruncatedBodyLength: len(truncatedBody),
		FinalBodyLength:     len(finalBody),
		RedactionApplied:    a.redact,
		PiiEntitiesKept:     len(adjustedPii),
		CandidatesCount:     len(candidates),
		ShrinkMode:          mode == ModeShrink,
		SystemPromptLength:  len(systemPrompt),
		UserPromptLength:    len(user),
	}
	md.ApproxPromptTokens = ApproxTokens(systemPrompt + "\n\n" + user)

	slog.Debug("Prompt assembled",
		"uid", req.Email.UID,
		"mode", string(mode),
		"truncation_applied", md.TruncationApplied,
		"candidates_count", md.CandidatesCount,
		"approx_prompt_tokens", md.ApproxPromptTokens)

	return &Prompt{
		System:   systemPrompt,
		User:     user,
		Schema:   a.doc.Raw,
		Metadata: md,
	}
}

func (a *Assembler) limitsFor(mode Mode) (bodyLimit, topN int) {
	if mode == ModeShrink {
		return a.limits.ShrinkBodyLimit, a.limits.ShrinkTopN
	}
	return a.limits.BodyTruncationLimit, a.limits.CandidateTopN
}

// selectTopN returns the first n candidates after a stable score-descending
// sort. Upstream order breaks ties, so a pre-sorted list passes through
// unchanged.
func selectTopN(candidates []models.CandidateKeyword, n int) []models.CandidateKeyword {
	sorted := make([]models.CandidateKeyword, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func (a *Assembler) renderUser(req *models.TriageRequest, body string, candidates []models.CandidateKeyword) string {
	subject := req.Email.SubjectCanonical
	if subject == "" {
		subject = noSubjectPlaceholder
	}
	from := req.Email.FromAddrRedacted
	if from == "" {
		from = unknownSenderPlaceholder
	}

	var b strings.Builder
	fmt.Fprintf(&b, userPromptHeader, req.DictionaryVersion, subject, from, body)
	b.WriteString("\n\n")

	b.WriteString(allowedTopicsHeader)
	for _, t := range models.AllTopics() {
		b.WriteString("\n- ")
		b.WriteString(string(t))
	}
	b.WriteString("\n\n")

	b.WriteString(candidatesHeader)
	for _, c := range candidates {
		b.WriteString("\n")
		fmt.Fprintf(&b, candidateLineFormat, c.CandidateID, c.Term, c.Lemma, c.Count, c.Score)
	}
	b.WriteString("\n\n")

	b.WriteString(userPromptFooter)

	return strings.TrimSpace(b.String())
}
