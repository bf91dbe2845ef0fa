package workflow

import "context"

// ApprovalHooks supplies the behavior behind a sanction's internal approval
// machine. The caller-facing trigger surface is small (submit, approve,
// accept, reject); the branching between moderated and unmoderated
// providers, revisable sanctions and delayed noops lives in the table.
type ApprovalHooks interface {
	// IsModerated reports whether the owning provider runs a moderation
	// queue; it routes admin approval to pending-moderation instead of
	// immediate approval.
	IsModerated(ctx context.Context, f *Fire) (bool, error)

	// Revisable reports whether rejection returns the sanction's target to
	// an editable in-progress state rather than a terminal rejection.
	Revisable(ctx context.Context, f *Fire) (bool, error)

	// CompletionDue reports whether an approved sanction has reached its
	// completion condition (an embargo past its end date).
	CompletionDue(ctx context.Context, f *Fire) (bool, error)

	ValidateSubmit(ctx context.Context, f *Fire) error
	// ValidateAccept distinguishes the moderator accept (requires provider
	// moderation capability, only from pending moderation) from the
	// system's automatic acceptance paths.
	ValidateAccept(ctx context.Context, f *Fire) error
	ValidateReject(ctx context.Context, f *Fire) error

	// OnSubmit initializes the approval round (deadline, per-admin slots)
	OnSubmit(ctx context.Context, f *Fire) error

	// OnComplete applies the sanction's terminal effect (make the
	// registration public, start or lift the embargo, withdraw).
	OnComplete(ctx context.Context, f *Fire) error

	// OnReject undoes the sanction's pending effect
	OnReject(ctx context.Context, f *Fire) error

	// SaveAction persists the immutable audit record for the sanction's own
	// stage transition. The registration-side action, when the derived
	// moderation transition has a named trigger, is written by
	// SaveTransition.
	SaveAction(ctx context.Context, f *Fire) error

	// SaveTransition persists the sanction, re-derives the owning
	// registration's moderation state, cascades it to descendants and
	// records the registration's audit action. Runs on every contentful
	// row; the delayed noop rows skip it.
	SaveTransition(ctx context.Context, f *Fire) error

	NotifySubmit(ctx context.Context, f *Fire) error
	NotifyModerationQueue(ctx context.Context, f *Fire) error
	NotifyAcceptReject(ctx context.Context, f *Fire) error
}

// ApprovalTransitions is the sanction-internal approval table shared by
// registration approvals, embargoes, retractions and embargo terminations.
//
// Row order is significant: contentful-by-guard first, then unguarded
// contentful rows, then the delayed noop rows that make re-firing an
// already-settled trigger idempotent instead of an error.
func ApprovalTransitions() []Transition[ApprovalHooks] {
	return []Transition[ApprovalHooks]{
		{
			Trigger: TriggerSubmit,
			Sources: []State{StateInProgress},
			Dest:    StateUnapproved,
			Before:  []Hook[ApprovalHooks]{ApprovalHooks.ValidateSubmit},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnSubmit,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifySubmit,
			},
		},
		{
			Trigger: TriggerApprove,
			Sources: []State{StateUnapproved},
			Dest:    StatePendingModeration,
			Guards:  []Guard[ApprovalHooks]{ApprovalHooks.IsModerated},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyModerationQueue,
			},
		},
		{
			Trigger: TriggerApprove,
			Sources: []State{StateUnapproved},
			Dest:    StateApproved,
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnComplete,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyAcceptReject,
			},
		},
		{
			// Delayed approve: the sanction already advanced past admin
			// approval; re-firing is a harmless noop with no audit record.
			Trigger: TriggerApprove,
			Sources: []State{StatePendingModeration, StateApproved, StateCompleted},
			Dest:    StateUnchanged,
		},
		{
			Trigger: TriggerAccept,
			Sources: []State{StateUnapproved, StatePendingModeration},
			Dest:    StateApproved,
			Before:  []Hook[ApprovalHooks]{ApprovalHooks.ValidateAccept},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnComplete,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyAcceptReject,
			},
		},
		{
			// Embargo completion: accept on an approved sanction whose
			// completion condition has arrived finalizes it.
			Trigger: TriggerAccept,
			Sources: []State{StateApproved},
			Dest:    StateCompleted,
			Guards:  []Guard[ApprovalHooks]{ApprovalHooks.CompletionDue},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnComplete,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
			},
		},
		{
			// Delayed accept
			Trigger: TriggerAccept,
			Sources: []State{StateApproved, StateCompleted},
			Dest:    StateUnchanged,
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StateUnapproved, StatePendingModeration},
			Dest:    StateInProgress,
			Guards:  []Guard[ApprovalHooks]{ApprovalHooks.Revisable},
			Before:  []Hook[ApprovalHooks]{ApprovalHooks.ValidateReject},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnReject,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyAcceptReject,
			},
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StateUnapproved},
			Dest:    StateRejected,
			Before:  []Hook[ApprovalHooks]{ApprovalHooks.ValidateReject},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnReject,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyAcceptReject,
			},
		},
		{
			Trigger: TriggerReject,
			Sources: []State{StatePendingModeration},
			Dest:    StateModeratorRejected,
			Before:  []Hook[ApprovalHooks]{ApprovalHooks.ValidateReject},
			After: []Hook[ApprovalHooks]{
				ApprovalHooks.OnReject,
				ApprovalHooks.SaveAction,
				ApprovalHooks.SaveTransition,
				ApprovalHooks.NotifyAcceptReject,
			},
		},
		{
			// Delayed reject
			Trigger: TriggerReject,
			Sources: []State{StateRejected, StateModeratorRejected},
			Dest:    StateUnchanged,
		},
	}
}
