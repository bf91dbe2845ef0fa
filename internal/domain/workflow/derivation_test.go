package workflow

import (
	"fmt"
	"testing"
)

func TestDeriveModerationState(t *testing.T) {
	tests := []struct {
		sanction SanctionType
		stage    State
		want     State
	}{
		// Registration approval
		{SanctionRegistrationApproval, StateInProgress, StateInitial},
		{SanctionRegistrationApproval, StateUnapproved, StateInitial},
		{SanctionRegistrationApproval, StatePendingModeration, StatePending},
		{SanctionRegistrationApproval, StateApproved, StateAccepted},
		{SanctionRegistrationApproval, StateCompleted, StateAccepted},
		{SanctionRegistrationApproval, StateRejected, StateReverted},
		{SanctionRegistrationApproval, StateModeratorRejected, StateRejected},

		// Embargo: approval starts the embargo, completion lifts it
		{SanctionEmbargo, StateInProgress, StateInitial},
		{SanctionEmbargo, StateUnapproved, StateInitial},
		{SanctionEmbargo, StatePendingModeration, StatePending},
		{SanctionEmbargo, StateApproved, StateEmbargo},
		{SanctionEmbargo, StateCompleted, StateAccepted},
		{SanctionEmbargo, StateRejected, StateReverted},
		{SanctionEmbargo, StateModeratorRejected, StateRejected},

		// Retraction: rejection is ambiguous and derives undefined
		{SanctionRetraction, StateUnapproved, StatePendingWithdrawRequest},
		{SanctionRetraction, StatePendingModeration, StatePendingWithdraw},
		{SanctionRetraction, StateApproved, StateWithdrawn},
		{SanctionRetraction, StateCompleted, StateWithdrawn},
		{SanctionRetraction, StateRejected, StateUndefined},
		{SanctionRetraction, StateModeratorRejected, StateUndefined},

		// Embargo termination: rejection returns to the embargo
		{SanctionEmbargoTermination, StateUnapproved, StatePendingEmbargoTermination},
		{SanctionEmbargoTermination, StatePendingModeration, StatePendingEmbargoTermination},
		{SanctionEmbargoTermination, StateApproved, StateAccepted},
		{SanctionEmbargoTermination, StateCompleted, StateAccepted},
		{SanctionEmbargoTermination, StateRejected, StateEmbargo},
		{SanctionEmbargoTermination, StateModeratorRejected, StateEmbargo},

		// Unknown type
		{SanctionType("bogus"), StateApproved, StateUndefined},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.sanction, tt.stage), func(t *testing.T) {
			if got := DeriveModerationState(tt.sanction, tt.stage); got != tt.want {
				t.Errorf("DeriveModerationState(%s, %s) = %s, want %s", tt.sanction, tt.stage, got, tt.want)
			}
		})
	}
}

func TestSanctionTypeIsValid(t *testing.T) {
	for _, typ := range []SanctionType{
		SanctionRegistrationApproval, SanctionEmbargo, SanctionRetraction, SanctionEmbargoTermination,
	} {
		if !typ.IsValid() {
			t.Errorf("expected %s to be valid", typ)
		}
	}
	if SanctionType("withdrawal").IsValid() {
		t.Error("expected unknown sanction type to be invalid")
	}
}

func TestTriggerFromModerationTransition(t *testing.T) {
	tests := []struct {
		from, to State
		forced   bool
		want     Trigger
		named    bool
	}{
		{StateInitial, StatePending, false, TriggerSubmit, true},
		{StatePending, StateAccepted, false, TriggerAcceptSubmission, true},
		{StatePending, StateEmbargo, false, TriggerAcceptSubmission, true},
		{StatePending, StateRejected, false, TriggerRejectSubmission, true},
		{StatePending, StateReverted, false, TriggerRejectSubmission, true},
		{StateAccepted, StatePendingWithdrawRequest, false, TriggerRequestWithdrawal, true},
		{StatePendingWithdrawRequest, StatePendingWithdraw, false, TriggerRequestWithdrawal, true},
		{StatePendingWithdraw, StateWithdrawn, false, TriggerAcceptWithdrawal, true},
		{StatePendingWithdrawRequest, StateWithdrawn, false, TriggerAcceptWithdrawal, true},
		{StatePendingWithdraw, StateAccepted, false, TriggerRejectWithdrawal, true},
		{StatePendingWithdraw, StateEmbargo, false, TriggerRejectWithdrawal, true},
		{StateAccepted, StateWithdrawn, false, TriggerForceWithdraw, true},
		{StateEmbargo, StatePendingEmbargoTermination, false, TriggerRequestEmbargoTermination, true},
		{StatePendingEmbargoTermination, StateAccepted, false, TriggerAcceptSubmission, true},
		{StatePendingEmbargoTermination, StateEmbargo, false, TriggerRejectSubmission, true},

		// A forced retraction overrides the consent trigger on any
		// transition into withdrawn
		{StatePendingWithdrawRequest, StateWithdrawn, true, TriggerForceWithdraw, true},
		{StatePendingWithdraw, StateWithdrawn, true, TriggerForceWithdraw, true},
		{StateAccepted, StateWithdrawn, true, TriggerForceWithdraw, true},

		// Resolutions with no named trigger
		{StateUndefined, StateAccepted, false, "", false},
		{StateInitial, StateAccepted, false, "", false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s to %s", tt.from, tt.to)
		if tt.forced {
			name += " forced"
		}
		t.Run(name, func(t *testing.T) {
			got, ok := TriggerFromModerationTransition(tt.from, tt.to, tt.forced)
			if ok != tt.named {
				t.Fatalf("named = %v, want %v", ok, tt.named)
			}
			if ok && got != tt.want {
				t.Errorf("trigger = %s, want %s", got, tt.want)
			}
		})
	}
}
