package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/openscience/moderation/internal/domain/workflow"
)

// TargetKind discriminates the concrete entity an action or reference
// points at. A tagged reference replaces runtime-polymorphic foreign keys:
// the kind is known wherever the reference is consumed.
type TargetKind string

const (
	TargetPreprint             TargetKind = "preprint"
	TargetRegistration         TargetKind = "registration"
	TargetNodeRequest          TargetKind = "node_request"
	TargetPreprintRequest      TargetKind = "preprint_request"
	TargetCollectionSubmission TargetKind = "collection_submission"
	TargetSanction             TargetKind = "sanction"
)

// TargetRef is a typed reference to a machineable entity
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// Action is the immutable audit record of one executed state-changing
// transition. It is written exactly once per such transition and never
// mutated afterwards.
type Action struct {
	ID        string           `json:"id"`
	Target    TargetRef        `json:"target"`
	Trigger   workflow.Trigger `json:"trigger"`
	FromState workflow.State   `json:"from_state"`
	ToState   workflow.State   `json:"to_state"`
	CreatorID string           `json:"creator_id"`
	Comment   string           `json:"comment"`
	Auto      bool             `json:"auto"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewAction builds an audit record for a completed fire
func NewAction(target TargetRef, f *workflow.Fire) *Action {
	createdAt := f.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &Action{
		ID:        uuid.NewString(),
		Target:    target,
		Trigger:   f.Trigger,
		FromState: f.From,
		ToState:   f.To,
		CreatorID: f.ActorID,
		Comment:   f.Comment,
		Auto:      f.Auto,
		CreatedAt: createdAt,
	}
}
