package validation

import (
	"encoding/json"
	"log/slog"

	"github.com/mailops/triaged/pkg/config"
	"github.com/mailops/triaged/pkg/models"
	"github.com/mailops/triaged/pkg/schema"
)

// Pipeline chains the validation stages over raw LLM output. Construction
// fixes the schema document and the verifier switches for the process
// lifetime; per-call state is only what Validate receives.
type Pipeline struct {
	doc           *schema.Document
	quality       QualityChecker
	evidenceCheck bool
	keywordCheck  bool
}

// NewPipeline builds a pipeline from the compiled schema document and the
// validation settings. The presence verifiers follow their config
// switches; span coherence cannot be turned off.
func NewPipeline(doc *schema.Document, settings config.ValidationSettings) *Pipeline {
	p := &Pipeline{
		doc:           doc,
		quality:       QualityChecker{MinConfidence: settings.MinConfidenceWarning},
		evidenceCheck: settings.EvidenceCheckEnabled(),
		keywordCheck:  settings.KeywordCheckEnabled(),
	}
	slog.Info("Validation pipeline initialized",
		"evidence_check", p.evidenceCheck,
		"keyword_check", p.keywordCheck,
		"min_confidence_warning", settings.MinConfidenceWarning)
	return p
}

// Validate runs the full pipeline over raw LLM output. On success it
// returns the decoded verdict plus accumulated advisory warnings; on the
// first hard violation it returns a Failure and nothing else.
func (p *Pipeline) Validate(content string, req *models.TriageRequest) (*models.EmailTriageResponse, []string, error) {
	parsed, err := ParseContent(content)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckSchema(p.doc.Compiled, parsed); err != nil {
		return nil, nil, err
	}
	resp, err := decodeResponse(content)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckRules(resp, req); err != nil {
		return nil, nil, err
	}

	warnings := p.quality.Check(resp)
	if p.evidenceCheck {
		warnings = append(warnings, VerifyEvidencePresence(resp, req)...)
	}
	if p.keywordCheck {
		warnings = append(warnings, VerifyKeywordPresence(resp, req)...)
	}
	warnings = append(warnings, VerifySpanCoherence(resp, req)...)

	if len(warnings) > 0 {
		slog.Info("Validation passed with warnings",
			"uid", req.Email.UID, "warning_count", len(warnings))
	} else {
		slog.Debug("Validation passed", "uid", req.Email.UID)
	}
	return resp, warnings, nil
}

// decodeResponse maps the schema-valid JSON onto the typed verdict. A
// failure here means the schema and the Go types disagree; it is reported
// in the schema failure class so the retry ladder still applies.
func decodeResponse(content string) (*models.EmailTriageResponse, error) {
	var resp models.EmailTriageResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, &SchemaError{
			Msg:        "response does not decode into the verdict model: " + err.Error(),
			Violations: []string{err.Error()},
		}
	}
	return &resp, nil
}
