package workflow

// State represents a moderation state in one of the workflow families
type State string

const (
	StateInitial   State = "initial"
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateWithdrawn State = "withdrawn"

	// Registration moderation only
	StateReverted                  State = "reverted"
	StateEmbargo                   State = "embargo"
	StatePendingEmbargoTermination State = "pending_embargo_termination"
	StatePendingWithdrawRequest    State = "pending_withdraw_request"
	StatePendingWithdraw           State = "pending_withdraw"
	StateUndefined                 State = "undefined"

	// Sanction approval stages
	StateUnapproved        State = "unapproved"
	StatePendingModeration State = "pending_moderation"
	StateApproved          State = "approved"
	StateModeratorRejected State = "moderator_rejected"
	StateCompleted         State = "completed"
	StateInProgress        State = "in_progress"

	// Collection submissions only
	StateRemoved State = "removed"
)

// StateUnchanged is the destination sentinel for noop transition rows: the
// row matches and its hooks run, but the entity keeps its current state.
const StateUnchanged State = "="

// Family identifies the closed state vocabulary an entity's lifecycle uses.
// A state value is only meaningful relative to its family; the transition
// tables are declared per family.
type Family string

const (
	FamilyDefault                Family = "default"
	FamilyReviewable             Family = "reviewable"
	FamilyRegistrationModeration Family = "registration_moderation"
	FamilyApproval               Family = "approval"
	FamilyCollectionSubmission   Family = "collection_submission"
)

var familyStates = map[Family][]State{
	FamilyDefault: {
		StateInitial, StatePending, StateAccepted, StateRejected,
	},
	FamilyReviewable: {
		StateInitial, StatePending, StateAccepted, StateRejected, StateWithdrawn,
	},
	FamilyRegistrationModeration: {
		StateInitial, StateReverted, StatePending, StateRejected, StateAccepted,
		StateEmbargo, StatePendingEmbargoTermination, StatePendingWithdrawRequest,
		StatePendingWithdraw, StateWithdrawn, StateUndefined,
	},
	FamilyApproval: {
		StateInProgress, StateUnapproved, StatePendingModeration, StateApproved,
		StateRejected, StateModeratorRejected, StateCompleted,
	},
	FamilyCollectionSubmission: {
		StateInProgress, StatePending, StateRejected, StateAccepted, StateRemoved,
	},
}

var stateLabels = map[State]string{
	StateInitial:                   "Initial",
	StatePending:                   "Pending",
	StateAccepted:                  "Accepted",
	StateRejected:                  "Rejected",
	StateWithdrawn:                 "Withdrawn",
	StateReverted:                  "Reverted",
	StateEmbargo:                   "Embargo",
	StatePendingEmbargoTermination: "Pending embargo termination",
	StatePendingWithdrawRequest:    "Pending withdraw request",
	StatePendingWithdraw:           "Pending withdraw",
	StateUndefined:                 "Undefined",
	StateUnapproved:                "Unapproved",
	StatePendingModeration:         "Pending moderation",
	StateApproved:                  "Approved",
	StateModeratorRejected:         "Moderator rejected",
	StateCompleted:                 "Completed",
	StateInProgress:                "In progress",
	StateRemoved:                   "Removed",
}

// String returns the persistence value of the state
func (s State) String() string {
	return string(s)
}

// Label returns the human-readable label for the state
func (s State) Label() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsValid returns true if the state belongs to any workflow family
func (s State) IsValid() bool {
	_, ok := stateLabels[s]
	return ok
}

// States returns the closed set of states belonging to the family
func (f Family) States() []State {
	states := familyStates[f]
	out := make([]State, len(states))
	copy(out, states)
	return out
}

// Contains reports whether the state is a member of the family's vocabulary
func (f Family) Contains(s State) bool {
	for _, member := range familyStates[f] {
		if member == s {
			return true
		}
	}
	return false
}
