package workflow

// Trigger represents a requested action that can cause a state transition
type Trigger string

const (
	TriggerSubmit      Trigger = "submit"
	TriggerAccept      Trigger = "accept"
	TriggerReject      Trigger = "reject"
	TriggerEditComment Trigger = "edit_comment"
	TriggerWithdraw    Trigger = "withdraw"

	// Sanction approval stage triggers. Approve records a per-admin approval
	// token; accept and reject act on the collected result.
	TriggerApprove Trigger = "approve"

	// Collection submission triggers
	TriggerRemove   Trigger = "remove"
	TriggerResubmit Trigger = "resubmit"
	TriggerCancel   Trigger = "cancel"

	// Registration moderation triggers, recorded on registration actions.
	// These never drive a machine directly; they are derived from observed
	// moderation-state transitions (see TriggerFromModerationTransition).
	TriggerAcceptSubmission          Trigger = "accept_submission"
	TriggerRejectSubmission          Trigger = "reject_submission"
	TriggerRequestWithdrawal         Trigger = "request_withdrawal"
	TriggerAcceptWithdrawal          Trigger = "accept_withdrawal"
	TriggerRejectWithdrawal          Trigger = "reject_withdrawal"
	TriggerForceWithdraw             Trigger = "force_withdraw"
	TriggerRequestEmbargoTermination Trigger = "request_embargo_termination"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// moderationTriggers maps an observed (from, to) registration moderation
// state change to the trigger recorded on the registration's audit action.
var moderationTriggers = map[[2]State]Trigger{
	{StateInitial, StatePending}:                          TriggerSubmit,
	{StatePending, StateAccepted}:                         TriggerAcceptSubmission,
	{StatePending, StateEmbargo}:                          TriggerAcceptSubmission,
	{StatePending, StateRejected}:                         TriggerRejectSubmission,
	{StatePending, StateReverted}:                         TriggerRejectSubmission,
	{StateAccepted, StatePendingWithdrawRequest}:          TriggerRequestWithdrawal,
	{StateEmbargo, StatePendingWithdrawRequest}:           TriggerRequestWithdrawal,
	{StatePendingWithdrawRequest, StatePendingWithdraw}:   TriggerRequestWithdrawal,
	{StatePendingWithdraw, StateWithdrawn}:                TriggerAcceptWithdrawal,
	{StatePendingWithdrawRequest, StateWithdrawn}:         TriggerAcceptWithdrawal,
	{StatePendingWithdraw, StateAccepted}:                 TriggerRejectWithdrawal,
	{StatePendingWithdraw, StateEmbargo}:                  TriggerRejectWithdrawal,
	{StateAccepted, StateWithdrawn}:                       TriggerForceWithdraw,
	{StateEmbargo, StateWithdrawn}:                        TriggerForceWithdraw,
	{StateEmbargo, StatePendingEmbargoTermination}:        TriggerRequestEmbargoTermination,
	{StatePendingEmbargoTermination, StateAccepted}:       TriggerAcceptSubmission,
	{StatePendingEmbargoTermination, StateEmbargo}:        TriggerRejectSubmission,
}

// TriggerFromModerationTransition returns the registration moderation trigger
// implied by a derived state change, or false when the pair has no named
// trigger (e.g. resolution of an UNDEFINED state from prior history).
//
// Any forced transition into WITHDRAWN records force_withdraw rather than the
// consent trigger: the retraction was imposed by a moderator, not approved by
// the contributors.
func TriggerFromModerationTransition(from, to State, forced bool) (Trigger, bool) {
	if forced && to == StateWithdrawn {
		return TriggerForceWithdraw, true
	}
	t, ok := moderationTriggers[[2]State{from, to}]
	return t, ok
}
