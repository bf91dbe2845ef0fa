package entity

import (
	"time"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// RequestType distinguishes the two request workflows
type RequestType string

const (
	RequestAccess     RequestType = "access"
	RequestWithdrawal RequestType = "withdrawal"
)

// NodeRequest is a user's request against a project node (access requests),
// moderated on the Default table by the node's admins.
type NodeRequest struct {
	ID                   string      `json:"id"`
	NodeID               string      `json:"node_id"`
	CreatorID            string      `json:"creator_id"`
	RequestType          RequestType `json:"request_type"`
	Comment              string      `json:"comment"`
	RequestedPermissions string      `json:"requested_permissions,omitempty"`

	State                workflow.State `json:"machine_state"`
	DateLastTransitioned *time.Time     `json:"date_last_transitioned,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineID implements workflow.Machineable
func (r *NodeRequest) MachineID() string {
	return r.ID
}

// MachineState implements workflow.Machineable
func (r *NodeRequest) MachineState() workflow.State {
	return r.State
}

// SetMachineState implements workflow.Machineable
func (r *NodeRequest) SetMachineState(s workflow.State) {
	r.State = s
}

// TargetRef returns the typed audit reference for this request
func (r *NodeRequest) TargetRef() TargetRef {
	return TargetRef{Kind: TargetNodeRequest, ID: r.ID}
}

// PreprintRequest is a request against a preprint; withdrawal requests are
// decided by provider moderators rather than node admins.
type PreprintRequest struct {
	ID          string      `json:"id"`
	PreprintID  string      `json:"preprint_id"`
	CreatorID   string      `json:"creator_id"`
	RequestType RequestType `json:"request_type"`
	Comment     string      `json:"comment"`

	State                workflow.State `json:"machine_state"`
	DateLastTransitioned *time.Time     `json:"date_last_transitioned,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MachineID implements workflow.Machineable
func (r *PreprintRequest) MachineID() string {
	return r.ID
}

// MachineState implements workflow.Machineable
func (r *PreprintRequest) MachineState() workflow.State {
	return r.State
}

// SetMachineState implements workflow.Machineable
func (r *PreprintRequest) SetMachineState(s workflow.State) {
	r.State = s
}

// TargetRef returns the typed audit reference for this request
func (r *PreprintRequest) TargetRef() TargetRef {
	return TargetRef{Kind: TargetPreprintRequest, ID: r.ID}
}
