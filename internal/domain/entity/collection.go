package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// CollectionSubmission links a project to a collection and carries the
// collection-submission lifecycle state.
type CollectionSubmission struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`
	NodeID       string `json:"node_id"`
	ProviderID   string `json:"provider_id"`
	CreatorID    string `json:"creator_id"`
	Comment      string `json:"comment"`

	State                workflow.State `json:"machine_state"`
	DateLastTransitioned *time.Time     `json:"date_last_transitioned,omitempty"`

	// NodeContributorIDs and NodeAdminIDs mirror the linked project's
	// contributor roles for submission and removal gating.
	NodeContributorIDs []string `json:"node_contributor_ids"`
	NodeAdminIDs       []string `json:"node_admin_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineID implements workflow.Machineable
func (c *CollectionSubmission) MachineID() string {
	return c.ID
}

// MachineState implements workflow.Machineable
func (c *CollectionSubmission) MachineState() workflow.State {
	return c.State
}

// SetMachineState implements workflow.Machineable
func (c *CollectionSubmission) SetMachineState(s workflow.State) {
	c.State = s
}

// TargetRef returns the typed audit reference for this submission
func (c *CollectionSubmission) TargetRef() TargetRef {
	return TargetRef{Kind: TargetCollectionSubmission, ID: c.ID}
}

// HasContributor reports whether the user contributes to the linked node
func (c *CollectionSubmission) HasContributor(userID string) bool {
	for _, id := range c.NodeContributorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasNodeAdmin reports whether the user administers the linked node
func (c *CollectionSubmission) HasNodeAdmin(userID string) bool {
	for _, id := range c.NodeAdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
