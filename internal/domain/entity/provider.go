package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// ModerationPolicy is a provider's reviews workflow setting
type ModerationPolicy string

const (
	PolicyNone   ModerationPolicy = ""
	PolicyPre    ModerationPolicy = "pre-moderation"
	PolicyPost   ModerationPolicy = "post-moderation"
	PolicyHybrid ModerationPolicy = "hybrid-moderation"
)

// Capability is a provider-scoped moderator permission
type Capability string

const (
	CapabilityViewSubmissions    Capability = "view_submissions"
	CapabilityAcceptSubmissions  Capability = "accept_submissions"
	CapabilityRejectSubmissions  Capability = "reject_submissions"
	CapabilityEditReviewComments Capability = "edit_review_comments"
	CapabilityWithdrawSubmissions Capability = "withdraw_submissions"
)

// ReviewTriggerCapabilities maps each permission-gated review trigger to the
// provider capability it requires.
var ReviewTriggerCapabilities = map[workflow.Trigger]Capability{
	workflow.TriggerAccept:      CapabilityAcceptSubmissions,
	workflow.TriggerReject:      CapabilityRejectSubmissions,
	workflow.TriggerEditComment: CapabilityEditReviewComments,
	workflow.TriggerWithdraw:    CapabilityWithdrawSubmissions,
}

// Provider hosts moderated entities (preprints, registrations, collection
// submissions) and carries the moderation policy that routes their
// submission workflows.
type Provider struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	ReviewsWorkflow     ModerationPolicy `json:"reviews_workflow"`
	ResubmissionAllowed bool             `json:"resubmission_allowed"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsModerated reports whether the provider runs any moderation queue
func (p *Provider) IsModerated() bool {
	return p.ReviewsWorkflow != PolicyNone
}

// IsHybridModerated reports whether moderator contributors bypass the queue
func (p *Provider) IsHybridModerated() bool {
	return p.ReviewsWorkflow == PolicyHybrid
}
