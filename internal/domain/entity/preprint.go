package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// Preprint is a reviewable artifact moderated on the Reviewable table
type Preprint struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	CreatorID     string   `json:"creator_id"`
	ProviderID    string   `json:"provider_id"`
	PrimaryFileID string   `json:"primary_file_id"`
	SubjectIDs    []string `json:"subject_ids"`

	ReviewsState         workflow.State `json:"reviews_state"`
	DateLastTransitioned *time.Time     `json:"date_last_transitioned,omitempty"`

	IsPublished             bool       `json:"is_published"`
	DatePublished           *time.Time `json:"date_published,omitempty"`
	EverPublic              bool       `json:"ever_public"`
	DateWithdrawn           *time.Time `json:"date_withdrawn,omitempty"`
	WithdrawalJustification string     `json:"withdrawal_justification,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineID implements workflow.Machineable
func (p *Preprint) MachineID() string {
	return p.ID
}

// MachineState implements workflow.Machineable
func (p *Preprint) MachineState() workflow.State {
	return p.ReviewsState
}

// SetMachineState implements workflow.Machineable
func (p *Preprint) SetMachineState(s workflow.State) {
	p.ReviewsState = s
}

// TargetRef returns the typed audit reference for this preprint
func (p *Preprint) TargetRef() TargetRef {
	return TargetRef{Kind: TargetPreprint, ID: p.ID}
}

// IsPublishable checks the preconditions for making the preprint public
func (p *Preprint) IsPublishable() error {
	if p.PrimaryFileID == "" {
		return workflow.NewValidationError("preprint %s cannot be published without a primary file", p.ID)
	}
	if p.ProviderID == "" {
		return workflow.NewValidationError("preprint %s cannot be published without a provider", p.ID)
	}
	if len(p.SubjectIDs) == 0 {
		return workflow.NewValidationError("preprint %s cannot be published without at least one subject", p.ID)
	}
	return nil
}
