package workflow

import "context"

// CollectionSubmissionHooks supplies collection-submission behavior. Submit
// routing depends on the collection provider's moderation policy (none,
// pre-moderation, hybrid) and on who is submitting.
type CollectionSubmissionHooks interface {
	IsModerated(ctx context.Context, f *Fire) (bool, error)
	IsHybridModerated(ctx context.Context, f *Fire) (bool, error)
	IsSubmittedByModeratorContributor(ctx context.Context, f *Fire) (bool, error)

	ValidateSubmit(ctx context.Context, f *Fire) error
	ValidateModerator(ctx context.Context, f *Fire) error
	ValidateRemove(ctx context.Context, f *Fire) error
	ValidateResubmit(ctx context.Context, f *Fire) error
	ValidateCancel(ctx context.Context, f *Fire) error

	SaveAction(ctx context.Context, f *Fire) error
	UpdateLastTransitioned(ctx context.Context, f *Fire) error
	SaveChanges(ctx context.Context, f *Fire) error

	NotifyPending(ctx context.Context, f *Fire) error
	NotifyAccepted(ctx context.Context, f *Fire) error
	NotifyRejected(ctx context.Context, f *Fire) error
	NotifyRemoved(ctx context.Context, f *Fire) error
	NotifyResubmitted(ctx context.Context, f *Fire) error
	NotifyCancelled(ctx context.Context, f *Fire) error
}

// CollectionSubmissionTransitions is the collection-submission table. The
// four submit rows express the moderation policy branching; the engine's
// first-match rule makes the unguarded rows the unmoderated fallback.
func CollectionSubmissionTransitions() []Transition[CollectionSubmissionHooks] {
	return []Transition[CollectionSubmissionHooks]{
		{
			Trigger: TriggerSubmit,
			Sources: []State{StateInProgress},
			Dest:    StatePending,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateSubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyPending,
			},
		},
		{
			Trigger: TriggerSubmit,
			Sources: []State{StateInProgress},
			Dest:    StateAccepted,
			Guards: []Guard[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.IsHybridModerated,
				CollectionSubmissionHooks.IsSubmittedByModeratorContributor,
			},
			Before: []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateSubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyAccepted,
			},
		},
		{
			Trigger: TriggerSubmit,
			Sources: []State{StateInProgress},
			Dest:    StatePending,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsHybridModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateSubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyPending,
			},
		},
		{
			// Unmoderated collections accept immediately
			Trigger: TriggerSubmit,
			Sources: []State{StateInProgress},
			Dest:    StateAccepted,
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateSubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyAccepted,
			},
		},
		{
			Trigger: TriggerAccept,
			Sources: []State{StatePending},
			Dest:    StateAccepted,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateModerator},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyAccepted,
			},
		},
		{
			Trigger: TriggerAccept,
			Sources: []State{StatePending},
			Dest:    StateAccepted,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsHybridModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateModerator},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyAccepted,
			},
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StatePending},
			Dest:    StateRejected,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateModerator},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyRejected,
			},
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StatePending},
			Dest:    StateRejected,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsHybridModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateModerator},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyRejected,
			},
		},
		{
			Trigger: TriggerRemove,
			Sources: []State{StateAccepted},
			Dest:    StateRemoved,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateRemove},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyRemoved,
			},
		},
		{
			// Unmoderated remove by a contributor admin
			Trigger: TriggerRemove,
			Sources: []State{StateAccepted},
			Dest:    StateRemoved,
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateRemove},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyRemoved,
			},
		},
		{
			Trigger: TriggerResubmit,
			Sources: []State{StateRemoved, StateRejected},
			Dest:    StatePending,
			Guards:  []Guard[CollectionSubmissionHooks]{CollectionSubmissionHooks.IsModerated},
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateResubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyResubmitted,
			},
		},
		{
			Trigger: TriggerResubmit,
			Sources: []State{StateRemoved, StateRejected},
			Dest:    StateAccepted,
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateResubmit},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyResubmitted,
			},
		},
		{
			Trigger: TriggerCancel,
			Sources: []State{StatePending},
			Dest:    StateInProgress,
			Before:  []Hook[CollectionSubmissionHooks]{CollectionSubmissionHooks.ValidateCancel},
			After: []Hook[CollectionSubmissionHooks]{
				CollectionSubmissionHooks.SaveAction,
				CollectionSubmissionHooks.UpdateLastTransitioned,
				CollectionSubmissionHooks.SaveChanges,
				CollectionSubmissionHooks.NotifyCancelled,
			},
		},
	}
}
