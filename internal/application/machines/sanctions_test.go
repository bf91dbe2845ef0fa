package machines

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
	"github.com/openscience/moderation/internal/domain/workflow"
)

type sanctionsEnv struct {
	sanctions     *mockSanctionRepo
	registrations *mockRegistrationRepo
	actions       *mockActionRepo
	perms         *mockPerms
	tokens        *mockTokens
	tx            *mockTxManager
	events        *mockDispatcher
	machine       *SanctionsMachine
}

func newSanctionsEnv(provider *entity.Provider, regs ...*entity.Registration) *sanctionsEnv {
	env := &sanctionsEnv{
		sanctions:     newMockSanctionRepo(),
		registrations: newMockRegistrationRepo(regs...),
		actions:       &mockActionRepo{},
		perms:         &mockPerms{grants: map[string][]entity.Capability{}},
		tokens:        &mockTokens{},
		tx:            &mockTxManager{},
		events:        &mockDispatcher{},
	}
	moderation := NewRegistrationModerationService(env.registrations, env.actions, &mockLogger{})
	env.machine = NewSanctionsMachine(
		env.sanctions, env.registrations, &mockProviderRepo{provider: provider},
		env.actions, moderation, env.perms, env.tokens, env.tx, env.events, &mockLogger{})
	env.machine.now = fixedNow
	return env
}

func rootRegistration(state workflow.State) *entity.Registration {
	return &entity.Registration{
		ID:                  "reg-1",
		Title:               "Preregistered replication",
		CreatorID:           "alice",
		ProviderID:          "osf-reg",
		ModerationState:     state,
		AdminContributorIDs: []string{"alice", "bob"},
	}
}

func unmoderatedProvider() *entity.Provider {
	return &entity.Provider{ID: "osf-reg", ReviewsWorkflow: entity.PolicyNone}
}

func moderatedProvider() *entity.Provider {
	return &entity.Provider{ID: "osf-reg", ReviewsWorkflow: entity.PolicyPre}
}

func TestSanctionInitiateOpensApprovalRound(t *testing.T) {
	env := newSanctionsEnv(unmoderatedProvider(), rootRegistration(workflow.StateInitial))

	sanction, err := env.machine.Initiate(context.Background(), InitiateInput{
		Type:           workflow.SanctionRegistrationApproval,
		RegistrationID: "reg-1",
		InitiatorID:    "alice",
		Justification:  "ready for review",
	})
	require.NoError(t, err)

	assert.Equal(t, workflow.StateUnapproved, sanction.ApprovalStage)
	assert.Equal(t, testNow, sanction.InitiationDate)
	assert.Equal(t, testNow.Add(entity.DefaultApprovalWindow), sanction.EndDate)

	// One approval slot with fresh tokens per admin contributor
	require.Len(t, sanction.Approvals, 2)
	slot := sanction.ApprovalFor("bob")
	require.NotNil(t, slot)
	assert.Equal(t, "tok-bob-approve", slot.ApprovalToken)
	assert.Equal(t, "tok-bob-reject", slot.RejectionToken)
	assert.False(t, slot.Approved)

	reg, _ := env.registrations.GetByID(context.Background(), "reg-1")
	assert.Equal(t, sanction.ID, reg.ActiveSanctionID)
	// Unapproved registration approval derives the state it already holds
	assert.Equal(t, workflow.StateInitial, reg.ModerationState)

	sanctionActions := env.actions.byTarget(entity.TargetSanction)
	require.Len(t, sanctionActions, 1)
	assert.Equal(t, workflow.TriggerSubmit, sanctionActions[0].Trigger)
	assert.Equal(t, workflow.StateInProgress, sanctionActions[0].FromState)
	assert.Equal(t, workflow.StateUnapproved, sanctionActions[0].ToState)

	notifies := env.events.ofType(event.TypeNotifyRequested)
	require.Len(t, notifies, 1)
	assert.Equal(t, "sanction_approval_requested", notifies[0].GetPayloadString("template"))
	assert.Equal(t, []string{"alice", "bob"}, notifies[0].GetPayloadStrings("recipients"))
}

func TestSanctionInitiateValidation(t *testing.T) {
	component := rootRegistration(workflow.StateInitial)
	component.ID = "reg-2"
	component.ParentID = "reg-1"
	env := newSanctionsEnv(unmoderatedProvider(), rootRegistration(workflow.StateInitial), component)

	tests := []struct {
		name string
		in   InitiateInput
	}{
		{"unknown type", InitiateInput{Type: "exile", RegistrationID: "reg-1", InitiatorID: "alice"}},
		{"embargo without end date", InitiateInput{Type: workflow.SanctionEmbargo, RegistrationID: "reg-1", InitiatorID: "alice"}},
		{"component target", InitiateInput{Type: workflow.SanctionRegistrationApproval, RegistrationID: "reg-2", InitiatorID: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.machine.Initiate(context.Background(), tt.in)
			var verr *workflow.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
	assert.Empty(t, env.sanctions.created)
}

func TestSanctionInitiateRequiresRegistrationAdmin(t *testing.T) {
	env := newSanctionsEnv(unmoderatedProvider(), rootRegistration(workflow.StateInitial))

	_, err := env.machine.Initiate(context.Background(), InitiateInput{
		Type:           workflow.SanctionRegistrationApproval,
		RegistrationID: "reg-1",
		InitiatorID:    "mallory",
	})
	require.ErrorIs(t, err, workflow.ErrPermissions)
}

// seedSubmitted creates a sanction already sitting in the unapproved admin
// round, with one slot per admin contributor.
func seedSubmitted(env *sanctionsEnv, typ workflow.SanctionType, reg *entity.Registration) *entity.Sanction {
	sanction := &entity.Sanction{
		ID:             "sanc-1",
		Type:           typ,
		RegistrationID: reg.ID,
		InitiatorID:    "alice",
		ApprovalStage:  workflow.StateUnapproved,
		InitiationDate: testNow.Add(-time.Hour),
		EndDate:        testNow.Add(entity.DefaultApprovalWindow),
		Revisable:      typ == workflow.SanctionRetraction,
	}
	for _, admin := range reg.AdminContributorIDs {
		sanction.Approvals = append(sanction.Approvals, &entity.Approval{
			UserID:         admin,
			ApprovalToken:  "tok-" + admin + "-approve",
			RejectionToken: "tok-" + admin + "-reject",
		})
	}
	env.sanctions.sanctions[sanction.ID] = sanction
	reg.ActiveSanctionID = sanction.ID
	return sanction
}

func TestApproveWithTokenPartial(t *testing.T) {
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)

	got, err := env.machine.ApproveWithToken(context.Background(), "sanc-1", "alice", "tok-alice-approve")
	require.NoError(t, err)

	// First of two approvals: the slot is recorded, the stage holds
	assert.Equal(t, workflow.StateUnapproved, got.ApprovalStage)
	slot := got.ApprovalFor("alice")
	assert.True(t, slot.Approved)
	require.NotNil(t, slot.DecidedAt)
	assert.Zero(t, env.tx.calls, "no fire until the round completes")
	assert.False(t, reg.IsPublic)
}

func TestApproveWithTokenFinalUnmoderated(t *testing.T) {
	child := rootRegistration(workflow.StateInitial)
	child.ID = "reg-child"
	child.ParentID = "reg-1"
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(unmoderatedProvider(), reg, child)
	sanction := seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)
	sanction.ApprovalFor("alice").Approved = true

	got, err := env.machine.ApproveWithToken(context.Background(), "sanc-1", "bob", "tok-bob-approve")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateApproved, got.ApprovalStage)
	assert.True(t, reg.IsPublic)
	assert.Equal(t, workflow.StateAccepted, reg.ModerationState)
	// The whole tree moves with the root
	assert.Equal(t, workflow.StateAccepted, env.registrations.cascades["reg-child"])

	changes := env.events.ofType(event.TypeModerationChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "reg-1", changes[0].TargetID)
	assert.Equal(t, workflow.StateInitial.String(), changes[0].GetPayloadString("from"))
	assert.Equal(t, workflow.StateAccepted.String(), changes[0].GetPayloadString("to"))

	reindexes := env.events.ofType(event.TypeReindexRequested)
	require.Len(t, reindexes, 1)
	assert.Equal(t, string(entity.TargetRegistration), reindexes[0].TargetKind)
	assert.Equal(t, "reg-1", reindexes[0].TargetID)
}

func TestApproveWithTokenRoutesToModerationQueue(t *testing.T) {
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(moderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)
	sanction.ApprovalFor("alice").Approved = true

	got, err := env.machine.ApproveWithToken(context.Background(), "sanc-1", "bob", "tok-bob-approve")
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePendingModeration, got.ApprovalStage)
	assert.False(t, reg.IsPublic, "nothing publishes before the moderator decides")
	assert.Equal(t, workflow.StatePending, reg.ModerationState)

	// The derived submit transition gets its own registration action
	regActions := env.actions.byTarget(entity.TargetRegistration)
	require.Len(t, regActions, 1)
	assert.Equal(t, workflow.TriggerSubmit, regActions[0].Trigger)

	notifies := env.events.ofType(event.TypeNotifyRequested)
	require.Len(t, notifies, 1)
	assert.Equal(t, "sanction_pending_moderation", notifies[0].GetPayloadString("template"))
}

func TestApproveWithTokenFinalRetraction(t *testing.T) {
	reg := rootRegistration(workflow.StatePendingWithdrawRequest)
	reg.IsPublic = true
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionRetraction, reg)
	sanction.ApprovalFor("alice").Approved = true

	got, err := env.machine.ApproveWithToken(context.Background(), "sanc-1", "bob", "tok-bob-approve")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateApproved, got.ApprovalStage)
	assert.Equal(t, workflow.StateWithdrawn, reg.ModerationState)
	require.NotNil(t, reg.DateWithdrawn)

	// Every admin consented: the withdrawal is accepted, not forced
	regActions := env.actions.byTarget(entity.TargetRegistration)
	require.Len(t, regActions, 1)
	assert.Equal(t, workflow.TriggerAcceptWithdrawal, regActions[0].Trigger)
	assert.Equal(t, workflow.StateWithdrawn, regActions[0].ToState)
}

func TestApproveWithTokenRejectsBadToken(t *testing.T) {
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)

	tests := []struct {
		name   string
		userID string
		token  string
	}{
		{"wrong purpose", "alice", "tok-alice-reject"},
		{"another admin's token", "alice", "tok-bob-approve"},
		{"no approval slot", "carol", "tok-carol-approve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.machine.ApproveWithToken(context.Background(), "sanc-1", tt.userID, tt.token)
			require.ErrorIs(t, err, workflow.ErrPermissions)
		})
	}
}

func TestModeratorAcceptPendingSanction(t *testing.T) {
	reg := rootRegistration(workflow.StatePending)
	env := newSanctionsEnv(moderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)
	sanction.ApprovalStage = workflow.StatePendingModeration
	env.perms.grants["mod"] = []entity.Capability{entity.CapabilityAcceptSubmissions}

	got, err := env.machine.Accept(context.Background(), "sanc-1", FireInput{ActorID: "mod"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StateApproved, got.ApprovalStage)
	assert.True(t, reg.IsPublic)
	assert.Equal(t, workflow.StateAccepted, reg.ModerationState)

	regActions := env.actions.byTarget(entity.TargetRegistration)
	require.Len(t, regActions, 1)
	assert.Equal(t, workflow.TriggerAcceptSubmission, regActions[0].Trigger)
}

func TestModeratorAcceptRequiresCapability(t *testing.T) {
	reg := rootRegistration(workflow.StatePending)
	env := newSanctionsEnv(moderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)
	sanction.ApprovalStage = workflow.StatePendingModeration

	_, err := env.machine.Accept(context.Background(), "sanc-1", FireInput{ActorID: "mod"})
	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Equal(t, workflow.StatePendingModeration, sanction.ApprovalStage)
}

func TestRejectWithTokenRevisableRetraction(t *testing.T) {
	reg := rootRegistration(workflow.StatePendingWithdrawRequest)
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	seedSubmitted(env, workflow.SanctionRetraction, reg)

	got, err := env.machine.RejectWithToken(context.Background(), "sanc-1", "bob", "tok-bob-reject")
	require.NoError(t, err)

	// Revisable sanctions return to in-progress instead of dying
	assert.Equal(t, workflow.StateInProgress, got.ApprovalStage)
	assert.Empty(t, reg.ActiveSanctionID)
	// No stage mapping exists for the revived retraction: the registration
	// falls back to the visible state implied by its embargo flag.
	assert.Equal(t, workflow.StateAccepted, reg.ModerationState)
}

func TestRejectWithTokenFallsBackToEmbargo(t *testing.T) {
	reg := rootRegistration(workflow.StatePendingWithdrawRequest)
	reg.Embargoed = true
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	seedSubmitted(env, workflow.SanctionRetraction, reg)

	_, err := env.machine.RejectWithToken(context.Background(), "sanc-1", "alice", "tok-alice-reject")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateEmbargo, reg.ModerationState)
}

func TestRejectWithTokenTerminalForApproval(t *testing.T) {
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)

	got, err := env.machine.RejectWithToken(context.Background(), "sanc-1", "bob", "tok-bob-reject")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateRejected, got.ApprovalStage)
	assert.False(t, reg.IsPublic)
	assert.Empty(t, reg.ActiveSanctionID)
	assert.Equal(t, workflow.StateReverted, reg.ModerationState)
}

func TestForceWithdraw(t *testing.T) {
	reg := rootRegistration(workflow.StateAccepted)
	reg.IsPublic = true
	env := newSanctionsEnv(moderatedProvider(), reg)
	env.perms.grants["mod"] = []entity.Capability{entity.CapabilityWithdrawSubmissions}

	sanction, err := env.machine.ForceWithdraw(context.Background(), "reg-1", "mod", "fabricated data")
	require.NoError(t, err)

	assert.Equal(t, workflow.SanctionRetraction, sanction.Type)
	assert.Equal(t, workflow.StateApproved, sanction.ApprovalStage)
	assert.Empty(t, sanction.Approvals, "no admin consent round on a forced retraction")
	assert.Equal(t, forceWithdrawPrefix+"fabricated data", sanction.Justification)

	assert.Equal(t, workflow.StateWithdrawn, reg.ModerationState)
	require.NotNil(t, reg.DateWithdrawn)
	assert.True(t, reg.IsPublic, "withdrawn registrations stay visible as tombstones")

	// Submit and accept run in a single transaction, each audited on the
	// sanction
	assert.Equal(t, 1, env.tx.calls)
	sanctionActions := env.actions.byTarget(entity.TargetSanction)
	require.Len(t, sanctionActions, 2)
	assert.Equal(t, workflow.TriggerSubmit, sanctionActions[0].Trigger)
	assert.Equal(t, workflow.TriggerAccept, sanctionActions[1].Trigger)

	// Both derived hops are audited on the registration; the transition
	// into withdrawn carries the force trigger, not the consent one
	regActions := env.actions.byTarget(entity.TargetRegistration)
	require.Len(t, regActions, 2)
	assert.Equal(t, workflow.TriggerRequestWithdrawal, regActions[0].Trigger)
	assert.Equal(t, workflow.TriggerForceWithdraw, regActions[1].Trigger)
	assert.Equal(t, workflow.StatePendingWithdrawRequest, regActions[1].FromState)
	assert.Equal(t, workflow.StateWithdrawn, regActions[1].ToState)
}

func TestForceWithdrawRequiresCapability(t *testing.T) {
	reg := rootRegistration(workflow.StateAccepted)
	env := newSanctionsEnv(moderatedProvider(), reg)

	_, err := env.machine.ForceWithdraw(context.Background(), "reg-1", "alice", "changed my mind")
	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Empty(t, env.sanctions.created)
}

func TestSweepApprovalWindows(t *testing.T) {
	reg := rootRegistration(workflow.StateInitial)
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionRegistrationApproval, reg)
	sanction.EndDate = testNow.Add(-time.Minute)
	env.sanctions.pending = []*entity.Sanction{sanction}

	require.NoError(t, env.machine.SweepApprovalWindows(context.Background()))

	// Silence counts as consent
	assert.Equal(t, workflow.StateApproved, sanction.ApprovalStage)
	assert.True(t, reg.IsPublic)
	sanctionActions := env.actions.byTarget(entity.TargetSanction)
	require.Len(t, sanctionActions, 1)
	assert.Equal(t, entity.SystemUserID, sanctionActions[0].CreatorID)
	assert.True(t, sanctionActions[0].Auto)
}

func TestSweepElapsedEmbargoes(t *testing.T) {
	end := testNow.Add(-time.Hour)
	reg := rootRegistration(workflow.StateEmbargo)
	reg.Embargoed = true
	env := newSanctionsEnv(unmoderatedProvider(), reg)
	sanction := seedSubmitted(env, workflow.SanctionEmbargo, reg)
	sanction.ApprovalStage = workflow.StateApproved
	sanction.EmbargoEndDate = &end
	env.sanctions.elapsed = []*entity.Sanction{sanction}

	require.NoError(t, env.machine.SweepElapsedEmbargoes(context.Background()))

	assert.Equal(t, workflow.StateCompleted, sanction.ApprovalStage)
	assert.False(t, reg.Embargoed)
	assert.True(t, reg.IsPublic)
	assert.Equal(t, workflow.StateAccepted, reg.ModerationState)
}
