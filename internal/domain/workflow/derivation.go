package workflow

// SanctionType identifies the kind of registration lifecycle event a
// sanction governs. Each type maps its approval stages onto the externally
// visible registration moderation state differently.
type SanctionType string

const (
	SanctionRegistrationApproval SanctionType = "registration_approval"
	SanctionEmbargo              SanctionType = "embargo"
	SanctionRetraction           SanctionType = "retraction"
	SanctionEmbargoTermination   SanctionType = "embargo_termination_approval"
)

// String returns the persistence value of the sanction type
func (t SanctionType) String() string {
	return string(t)
}

// IsValid returns true if the type is a known sanction type
func (t SanctionType) IsValid() bool {
	switch t {
	case SanctionRegistrationApproval, SanctionEmbargo, SanctionRetraction, SanctionEmbargoTermination:
		return true
	}
	return false
}

// sanctionStateMap fixes, per sanction type, the registration moderation
// state implied by each approval stage. Pairs absent from the map derive
// StateUndefined: notably a rejected retraction, where the registration
// could be either accepted or under embargo depending on its prior state,
// so the caller must resolve from prior persisted state instead.
var sanctionStateMap = map[SanctionType]map[State]State{
	SanctionRegistrationApproval: {
		StateInProgress:        StateInitial,
		StateUnapproved:        StateInitial,
		StatePendingModeration: StatePending,
		StateApproved:          StateAccepted,
		StateCompleted:         StateAccepted,
		StateRejected:          StateReverted,
		StateModeratorRejected: StateRejected,
	},
	SanctionEmbargo: {
		StateInProgress:        StateInitial,
		StateUnapproved:        StateInitial,
		StatePendingModeration: StatePending,
		StateApproved:          StateEmbargo,
		StateCompleted:         StateAccepted,
		StateRejected:          StateReverted,
		StateModeratorRejected: StateRejected,
	},
	SanctionRetraction: {
		StateUnapproved:        StatePendingWithdrawRequest,
		StatePendingModeration: StatePendingWithdraw,
		StateApproved:          StateWithdrawn,
		StateCompleted:         StateWithdrawn,
		// Rejected retractions are ambiguous between accepted and embargo
	},
	SanctionEmbargoTermination: {
		StateUnapproved:        StatePendingEmbargoTermination,
		StatePendingModeration: StatePendingEmbargoTermination,
		StateApproved:          StateAccepted,
		StateCompleted:         StateAccepted,
		StateRejected:          StateEmbargo,
		StateModeratorRejected: StateEmbargo,
	},
}

// DeriveModerationState maps a sanction's (type, approval stage) pair to
// the registration moderation state it implies. The mapping is pure: the
// same inputs always yield the same output. When the pair cannot resolve
// to a single state the result is StateUndefined and the caller falls back
// to other signal (the registration's prior persisted state).
func DeriveModerationState(t SanctionType, stage State) State {
	stages, ok := sanctionStateMap[t]
	if !ok {
		return StateUndefined
	}
	if derived, ok := stages[stage]; ok {
		return derived
	}
	return StateUndefined
}
