package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// DefaultApprovalWindow is how long admins have to approve or reject a
// sanction before the sweep finalizes it (silence counts as consent).
const DefaultApprovalWindow = 48 * time.Hour

// Approval is one admin contributor's approval slot on a sanction. The
// tokens gate the emailed approve/reject links in place of session auth.
type Approval struct {
	UserID         string     `json:"user_id"`
	ApprovalToken  string     `json:"approval_token"`
	RejectionToken string     `json:"rejection_token"`
	Approved       bool       `json:"approved"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

// Sanction governs one registration lifecycle event (approval, embargo,
// retraction, embargo termination). Its approval stage is internal; the
// registration's visible moderation state is derived from it.
type Sanction struct {
	ID             string                `json:"id"`
	Type           workflow.SanctionType `json:"type"`
	RegistrationID string                `json:"registration_id"`
	InitiatorID    string                `json:"initiator_id"`

	ApprovalStage workflow.State `json:"approval_stage"`

	InitiationDate time.Time  `json:"initiation_date"`
	EndDate        time.Time  `json:"end_date"`
	EmbargoEndDate *time.Time `json:"embargo_end_date,omitempty"`
	Justification  string     `json:"justification,omitempty"`
	Revisable      bool       `json:"revisable"`

	Approvals []*Approval `json:"approvals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineID implements workflow.Machineable
func (s *Sanction) MachineID() string {
	return s.ID
}

// MachineState implements workflow.Machineable
func (s *Sanction) MachineState() workflow.State {
	return s.ApprovalStage
}

// SetMachineState implements workflow.Machineable
func (s *Sanction) SetMachineState(state workflow.State) {
	s.ApprovalStage = state
}

// TargetRef returns the typed audit reference for this sanction
func (s *Sanction) TargetRef() TargetRef {
	return TargetRef{Kind: TargetSanction, ID: s.ID}
}

// ApprovalFor returns the approval slot for the given admin, or nil when
// the user holds no slot on this sanction.
func (s *Sanction) ApprovalFor(userID string) *Approval {
	for _, a := range s.Approvals {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

// AllApproved reports whether every admin slot has been approved
func (s *Sanction) AllApproved() bool {
	if len(s.Approvals) == 0 {
		return false
	}
	for _, a := range s.Approvals {
		if !a.Approved {
			return false
		}
	}
	return true
}

// ApprovalWindowElapsed reports whether the admin approval deadline passed
func (s *Sanction) ApprovalWindowElapsed(now time.Time) bool {
	return !s.EndDate.IsZero() && now.After(s.EndDate)
}

// EmbargoElapsed reports whether an embargo end date has arrived
func (s *Sanction) EmbargoElapsed(now time.Time) bool {
	return s.EmbargoEndDate != nil && now.After(*s.EmbargoEndDate)
}
