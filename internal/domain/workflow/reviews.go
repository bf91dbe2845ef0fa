package workflow

import "context"

// ReviewableHooks supplies the concrete guard, validation, audit and
// notification behavior for entities moderated on the Default or Reviewable
// tables (preprints, node requests, preprint requests). One implementation
// exists per entity type; the tables below reference its methods as data.
type ReviewableHooks interface {
	// ResubmissionAllowed gates the resubmit row: a miss means the row does
	// not apply and the engine keeps scanning, not that the actor is
	// forbidden.
	ResubmissionAllowed(ctx context.Context, f *Fire) (bool, error)

	// Validation hooks run before any mutation and raise a PermissionsError
	// or ValidationError to abort the fire.
	ValidateSubmit(ctx context.Context, f *Fire) error
	ValidateAcceptReject(ctx context.Context, f *Fire) error
	ValidateEditComment(ctx context.Context, f *Fire) error
	ValidateWithdraw(ctx context.Context, f *Fire) error

	// SaveAction persists the immutable audit record for the transition
	SaveAction(ctx context.Context, f *Fire) error

	// UpdateLastTransitioned stamps the entity's last-transitioned time,
	// defaulting to the action's creation time.
	UpdateLastTransitioned(ctx context.Context, f *Fire) error

	// SaveChanges persists the entity and applies trigger-coupled side
	// effects (publish on accept into a public state, withdraw stamping).
	SaveChanges(ctx context.Context, f *Fire) error

	NotifySubmit(ctx context.Context, f *Fire) error
	NotifyResubmit(ctx context.Context, f *Fire) error
	NotifyAcceptReject(ctx context.Context, f *Fire) error
	NotifyEditComment(ctx context.Context, f *Fire) error
	NotifyWithdraw(ctx context.Context, f *Fire) error
}

// DefaultTransitions is the table shared by node and preprint requests.
// Rows are scanned in order; the engine picks the first whose guards pass.
func DefaultTransitions() []Transition[ReviewableHooks] {
	return []Transition[ReviewableHooks]{
		{
			Trigger: TriggerSubmit,
			Sources: []State{StateInitial},
			Dest:    StatePending,
			Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateSubmit},
			After: []Hook[ReviewableHooks]{
				ReviewableHooks.SaveAction,
				ReviewableHooks.UpdateLastTransitioned,
				ReviewableHooks.SaveChanges,
				ReviewableHooks.NotifySubmit,
			},
		},
		{
			Trigger: TriggerSubmit,
			Sources: []State{StatePending, StateRejected},
			Dest:    StatePending,
			Guards:  []Guard[ReviewableHooks]{ReviewableHooks.ResubmissionAllowed},
			Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateSubmit},
			After: []Hook[ReviewableHooks]{
				ReviewableHooks.SaveAction,
				ReviewableHooks.UpdateLastTransitioned,
				ReviewableHooks.SaveChanges,
				ReviewableHooks.NotifyResubmit,
			},
		},
		{
			Trigger: TriggerAccept,
			Sources: []State{StatePending, StateRejected},
			Dest:    StateAccepted,
			Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateAcceptReject},
			After: []Hook[ReviewableHooks]{
				ReviewableHooks.SaveAction,
				ReviewableHooks.UpdateLastTransitioned,
				ReviewableHooks.SaveChanges,
				ReviewableHooks.NotifyAcceptReject,
			},
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StatePending, StateAccepted},
			Dest:    StateRejected,
			Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateAcceptReject},
			After: []Hook[ReviewableHooks]{
				ReviewableHooks.SaveAction,
				ReviewableHooks.UpdateLastTransitioned,
				ReviewableHooks.SaveChanges,
				ReviewableHooks.NotifyAcceptReject,
			},
		},
		{
			Trigger: TriggerEditComment,
			Sources: []State{StatePending, StateRejected, StateAccepted},
			Dest:    StateUnchanged,
			Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateEditComment},
			After: []Hook[ReviewableHooks]{
				ReviewableHooks.SaveAction,
				ReviewableHooks.NotifyEditComment,
			},
		},
	}
}

// ReviewableTransitions extends the default table with withdrawal, used by
// preprints.
func ReviewableTransitions() []Transition[ReviewableHooks] {
	return append(DefaultTransitions(), Transition[ReviewableHooks]{
		Trigger: TriggerWithdraw,
		Sources: []State{StatePending, StateAccepted},
		Dest:    StateWithdrawn,
		Before:  []Hook[ReviewableHooks]{ReviewableHooks.ValidateWithdraw},
		After: []Hook[ReviewableHooks]{
			ReviewableHooks.SaveAction,
			ReviewableHooks.UpdateLastTransitioned,
			ReviewableHooks.SaveChanges,
			ReviewableHooks.NotifyWithdraw,
		},
	})
}
