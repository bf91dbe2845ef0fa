package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// Registration is a registered snapshot of a project. Its moderation state
// is not driven by a transition table directly: it is derived from the
// active sanction's approval stage and cascaded from the root of its
// registration tree (children and grandchildren carry the root's state).
type Registration struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CreatorID  string `json:"creator_id"`
	ProviderID string `json:"provider_id"`

	// ParentID links a component registration to its parent in the project
	// hierarchy; empty for a root registration.
	ParentID string `json:"parent_id,omitempty"`

	ModerationState      workflow.State `json:"moderation_state"`
	ActiveSanctionID     string         `json:"active_sanction_id,omitempty"`
	DateLastTransitioned *time.Time     `json:"date_last_transitioned,omitempty"`

	IsPublic      bool       `json:"is_public"`
	Embargoed     bool       `json:"embargoed"`
	DateWithdrawn *time.Time `json:"date_withdrawn,omitempty"`

	// AdminContributorIDs are the users whose approval a sanction collects
	AdminContributorIDs []string `json:"admin_contributor_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRoot reports whether this registration heads its registration tree
func (r *Registration) IsRoot() bool {
	return r.ParentID == ""
}

// HasAdmin reports whether the user is an admin contributor
func (r *Registration) HasAdmin(userID string) bool {
	for _, id := range r.AdminContributorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TargetRef returns the typed audit reference for this registration
func (r *Registration) TargetRef() TargetRef {
	return TargetRef{Kind: TargetRegistration, ID: r.ID}
}
