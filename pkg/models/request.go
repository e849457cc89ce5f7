package models

import (
	"errors"
	"fmt"
)

// CandidateKeyword is a deterministically generated keyword the LLM is
// allowed to cite. The stable CandidateID links the selection back to the
// dictionary and is the anchor of the anti-hallucination check.
type CandidateKeyword struct {
	CandidateID string  `json:"candidate_id"`
	Term        string  `json:"term"`
	Lemma       string  `json:"lemma"`
	Count       int     `json:"count"`
	Source      string  `json:"source"`
	Score       float64 `json:"score"`
}

// TriageRequest is the complete unit of work: email + candidates + the
// dictionary version frozen for the request's lifetime.
type TriageRequest struct {
	Email             EmailDocument      `json:"email"`
	CandidateKeywords []CandidateKeyword `json:"candidate_keywords"`
	DictionaryVersion int                `json:"dictionary_version"`
	ConfigOverrides   map[string]any     `json:"config_overrides,omitempty"`
}

// Validate checks the structural invariants of the request: non-empty
// candidate list with unique ids, dictionary version >= 1, and every PII
// span inside the body bounds.
func (r *TriageRequest) Validate() error {
	if r.Email.UID == "" {
		return errors.New("email.uid must not be empty")
	}
	if r.DictionaryVersion < 1 {
		return fmt.Errorf("dictionary_version must be >= 1, got %d", r.DictionaryVersion)
	}
	if len(r.CandidateKeywords) == 0 {
		return errors.New("candidate_keywords must not be empty")
	}
	seen := make(map[string]struct{}, len(r.CandidateKeywords))
	for i, c := range r.CandidateKeywords {
		if c.CandidateID == "" {
			return fmt.Errorf("candidate_keywords[%d].candidate_id must not be empty", i)
		}
		if _, dup := seen[c.CandidateID]; dup {
			return fmt.Errorf("candidate_keywords[%d]: duplicate candidate_id %q", i, c.CandidateID)
		}
		seen[c.CandidateID] = struct{}{}
		if c.Count < 1 {
			return fmt.Errorf("candidate_keywords[%d].count must be >= 1, got %d", i, c.Count)
		}
		if c.Score < 0 {
			return fmt.Errorf("candidate_keywords[%d].score must be >= 0, got %f", i, c.Score)
		}
	}
	bodyLen := len(r.Email.BodyTextCanonical)
	for i, p := range r.Email.PiiEntities {
		if p.SpanStart < 0 || p.SpanEnd > bodyLen || p.SpanStart >= p.SpanEnd {
			return fmt.Errorf("email.pii_entities[%d]: span [%d,%d) outside body of length %d",
				i, p.SpanStart, p.SpanEnd, bodyLen)
		}
	}
	return nil
}

// CandidateIDs returns the set of candidate ids for membership checks.
func (r *TriageRequest) CandidateIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.CandidateKeywords))
	for _, c := range r.CandidateKeywords {
		ids[c.CandidateID] = struct{}{}
	}
	return ids
}

// CandidateByID returns the candidate with the given id, or nil.
func (r *TriageRequest) CandidateByID(id string) *CandidateKeyword {
	for i := range r.CandidateKeywords {
		if r.CandidateKeywords[i].CandidateID == id {
			return &r.CandidateKeywords[i]
		}
	}
	return nil
}
