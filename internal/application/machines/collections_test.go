package machines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
	"github.com/openscience/moderation/internal/domain/workflow"
)

type collectionsEnv struct {
	submissions *mockCollectionRepo
	actions     *mockActionRepo
	perms       *mockPerms
	events      *mockDispatcher
	machine     *CollectionsMachine
}

func newCollectionsEnv(submission *entity.CollectionSubmission, provider *entity.Provider) *collectionsEnv {
	env := &collectionsEnv{
		submissions: newMockCollectionRepo(submission),
		actions:     &mockActionRepo{},
		perms:       &mockPerms{grants: map[string][]entity.Capability{}},
		events:      &mockDispatcher{},
	}
	env.machine = NewCollectionsMachine(
		env.submissions, &mockProviderRepo{provider: provider}, env.actions,
		env.perms, &mockTxManager{}, env.events, &mockLogger{})
	env.machine.now = fixedNow
	return env
}

func collectionSubmission(state workflow.State) *entity.CollectionSubmission {
	return &entity.CollectionSubmission{
		ID:                 "cs-1",
		CollectionID:       "coll-1",
		NodeID:             "node-1",
		ProviderID:         "coll-prov",
		CreatorID:          "alice",
		State:              state,
		NodeContributorIDs: []string{"alice", "bob"},
		NodeAdminIDs:       []string{"alice"},
	}
}

func collectionProvider(policy entity.ModerationPolicy) *entity.Provider {
	return &entity.Provider{ID: "coll-prov", ReviewsWorkflow: policy}
}

func TestCollectionSubmitRouting(t *testing.T) {
	tests := []struct {
		name      string
		policy    entity.ModerationPolicy
		actor     string
		moderator bool
		want      workflow.State
	}{
		{"moderated goes to queue", entity.PolicyPre, "alice", false, workflow.StatePending},
		{"hybrid moderator contributor skips queue", entity.PolicyHybrid, "alice", true, workflow.StateAccepted},
		{"hybrid plain contributor queues", entity.PolicyHybrid, "alice", false, workflow.StatePending},
		{"unmoderated accepts immediately", entity.PolicyNone, "alice", false, workflow.StateAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submission := collectionSubmission(workflow.StateInProgress)
			env := newCollectionsEnv(submission, collectionProvider(tt.policy))
			if tt.moderator {
				env.perms.grants[tt.actor] = []entity.Capability{entity.CapabilityAcceptSubmissions}
			}

			got, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerSubmit,
				FireInput{ActorID: tt.actor})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State)

			if tt.want == workflow.StateAccepted {
				require.Len(t, env.events.ofType(event.TypeReindexRequested), 1)
			} else {
				assert.Empty(t, env.events.ofType(event.TypeReindexRequested))
			}
		})
	}
}

func TestCollectionSubmitRequiresContributor(t *testing.T) {
	submission := collectionSubmission(workflow.StateInProgress)
	env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))

	_, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerSubmit,
		FireInput{ActorID: "mallory"})

	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Equal(t, workflow.StateInProgress, submission.State)
}

func TestCollectionModeratorDecision(t *testing.T) {
	tests := []struct {
		name    string
		trigger workflow.Trigger
		grant   entity.Capability
		want    workflow.State
	}{
		{"accept", workflow.TriggerAccept, entity.CapabilityAcceptSubmissions, workflow.StateAccepted},
		{"reject", workflow.TriggerReject, entity.CapabilityRejectSubmissions, workflow.StateRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submission := collectionSubmission(workflow.StatePending)
			env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))
			env.perms.grants["mod"] = []entity.Capability{tt.grant}

			got, err := env.machine.Run(context.Background(), "cs-1", tt.trigger,
				FireInput{ActorID: "mod", Comment: "reviewed"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, "reviewed", got.Comment)

			// The wrong capability does not cross over
			submission2 := collectionSubmission(workflow.StatePending)
			env2 := newCollectionsEnv(submission2, collectionProvider(entity.PolicyPre))
			env2.perms.grants["mod"] = []entity.Capability{entity.CapabilityViewSubmissions}
			_, err = env2.machine.Run(context.Background(), "cs-1", tt.trigger,
				FireInput{ActorID: "mod"})
			require.ErrorIs(t, err, workflow.ErrPermissions)
		})
	}
}

func TestCollectionRemove(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		grants  []entity.Capability
		wantErr bool
	}{
		{"node admin", "alice", nil, false},
		{"provider moderator", "mod", []entity.Capability{entity.CapabilityWithdrawSubmissions}, false},
		{"plain contributor", "bob", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submission := collectionSubmission(workflow.StateAccepted)
			env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))
			if tt.grants != nil {
				env.perms.grants[tt.actor] = tt.grants
			}

			got, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerRemove,
				FireInput{ActorID: tt.actor, Comment: "out of scope for this collection"})
			if tt.wantErr {
				require.ErrorIs(t, err, workflow.ErrPermissions)
				assert.Equal(t, workflow.StateAccepted, submission.State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, workflow.StateRemoved, got.State)
			require.Len(t, env.events.ofType(event.TypeReindexRequested), 1)
		})
	}
}

func TestCollectionResubmit(t *testing.T) {
	submission := collectionSubmission(workflow.StateRemoved)
	env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))

	got, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerResubmit,
		FireInput{ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, got.State)

	// Only a node admin may resubmit
	submission2 := collectionSubmission(workflow.StateRemoved)
	env2 := newCollectionsEnv(submission2, collectionProvider(entity.PolicyPre))
	_, err = env2.machine.Run(context.Background(), "cs-1", workflow.TriggerResubmit,
		FireInput{ActorID: "bob"})
	require.ErrorIs(t, err, workflow.ErrPermissions)
}

func TestCollectionCancel(t *testing.T) {
	submission := collectionSubmission(workflow.StatePending)
	env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))

	got, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerCancel,
		FireInput{ActorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInProgress, got.State)

	notifies := env.events.ofType(event.TypeNotifyRequested)
	require.Len(t, notifies, 1)
	assert.Equal(t, "collection_submission_cancelled", notifies[0].GetPayloadString("template"))
}

func TestCollectionCancelOnlyFromPending(t *testing.T) {
	submission := collectionSubmission(workflow.StateAccepted)
	env := newCollectionsEnv(submission, collectionProvider(entity.PolicyPre))

	_, err := env.machine.Run(context.Background(), "cs-1", workflow.TriggerCancel,
		FireInput{ActorID: "alice"})

	var terr *workflow.InvalidTriggerError
	require.ErrorAs(t, err, &terr)
}
