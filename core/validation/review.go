// Package validation gates entity candidates between extraction and
// graph commitment. Candidates move Pending -> Accepted|Rejected, and
// back to Pending only through an explicit Reopen.
package validation

import (
	"errors"

	"github.com/castellan/storygraph/model"
	"github.com/google/uuid"
)

var (
	// ErrCandidateNotFound indicates a status change for an unknown
	// candidate id.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Policy decides what Review does with pending candidates.
type Policy string

const (
	// AutoAcceptAll accepts every pending candidate.
	AutoAcceptAll Policy = "auto_accept_all"
	// InteractiveReview leaves pending candidates untouched for a
	// human reviewer to decide via SetStatus.
	InteractiveReview Policy = "interactive_review"
)

// BatchAction names for ApplyBatchAction.
const (
	ActionAcceptAll = "accept_all"
	ActionRejectAll = "reject_all"
)

// ReviewStats summarizes the review state of a candidate set.
type ReviewStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Reviewer applies a review policy and manual decisions to candidates.
type Reviewer struct {
	policy Policy
}

// NewReviewer creates a reviewer. An empty policy defaults to
// AutoAcceptAll.
func NewReviewer(policy Policy) *Reviewer {
	if policy == "" {
		policy = AutoAcceptAll
	}
	return &Reviewer{policy: policy}
}

// Policy returns the active review policy.
func (r *Reviewer) Policy() Policy {
	return r.policy
}

// Review applies the policy to all pending candidates. Accepted and
// rejected candidates are never changed, so re-running Review is
// idempotent.
func (r *Reviewer) Review(candidates []*model.Candidate) {
	if r.policy != AutoAcceptAll {
		return
	}
	for _, candidate := range candidates {
		if candidate.Status == model.CandidateStatusPending {
			candidate.Status = model.CandidateStatusAccepted
		}
	}
}

// SetStatus sets the review decision for one candidate. Unknown ids
// return ErrCandidateNotFound without mutating anything. Accepted and
// Rejected are terminal: the only way out is an explicit Reopen, so
// any transition from a terminal state (other than re-setting the same
// status) returns ErrInvalidTransition.
func (r *Reviewer) SetStatus(candidates []*model.Candidate, id uuid.UUID, status model.CandidateStatus) error {
	candidate := findCandidate(candidates, id)
	if candidate == nil {
		return ErrCandidateNotFound
	}

	if candidate.Status != model.CandidateStatusPending && status != candidate.Status {
		return ErrInvalidTransition
	}

	candidate.Status = status
	return nil
}

// Reopen moves a terminal candidate back to Pending for re-review.
func (r *Reviewer) Reopen(candidates []*model.Candidate, id uuid.UUID) error {
	candidate := findCandidate(candidates, id)
	if candidate == nil {
		return ErrCandidateNotFound
	}

	candidate.Status = model.CandidateStatusPending
	return nil
}

// ApplyBatchAction accepts or rejects all pending candidates in one
// call. Terminal candidates are left unchanged.
func (r *Reviewer) ApplyBatchAction(candidates []*model.Candidate, action string) error {
	var status model.CandidateStatus
	switch action {
	case ActionAcceptAll:
		status = model.CandidateStatusAccepted
	case ActionRejectAll:
		status = model.CandidateStatusRejected
	default:
		return errors.New("unknown batch action: " + action)
	}

	for _, candidate := range candidates {
		if candidate.Status == model.CandidateStatusPending {
			candidate.Status = status
		}
	}
	return nil
}

// Stats counts candidates per review state.
func Stats(candidates []*model.Candidate) ReviewStats {
	stats := ReviewStats{Total: len(candidates)}
	for _, candidate := range candidates {
		switch candidate.Status {
		case model.CandidateStatusAccepted:
			stats.Accepted++
		case model.CandidateStatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
	}
	return stats
}

// Accepted filters the candidates down to the accepted ones.
func Accepted(candidates []*model.Candidate) []*model.Candidate {
	var accepted []*model.Candidate
	for _, candidate := range candidates {
		if candidate.Status == model.CandidateStatusAccepted {
			accepted = append(accepted, candidate)
		}
	}
	return accepted
}

func findCandidate(candidates []*model.Candidate, id uuid.UUID) *model.Candidate {
	for _, candidate := range candidates {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}
