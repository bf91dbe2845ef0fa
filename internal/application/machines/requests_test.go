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

type nodeRequestsEnv struct {
	requests *mockNodeRequestRepo
	nodes    *mockNodeRepo
	actions  *mockActionRepo
	events   *mockDispatcher
	machine  *NodeRequestsMachine
}

func newNodeRequestsEnv(request *entity.NodeRequest, node *entity.Node) *nodeRequestsEnv {
	env := &nodeRequestsEnv{
		requests: newMockNodeRequestRepo(request),
		nodes:    &mockNodeRepo{node: node},
		actions:  &mockActionRepo{},
		events:   &mockDispatcher{},
	}
	env.machine = NewNodeRequestsMachine(
		env.requests, env.nodes, env.actions, &mockTxManager{}, env.events, &mockLogger{})
	env.machine.now = fixedNow
	return env
}

func accessRequest(state workflow.State) *entity.NodeRequest {
	return &entity.NodeRequest{
		ID:          "req-1",
		NodeID:      "node-1",
		CreatorID:   "bob",
		RequestType: entity.RequestAccess,
		Comment:     "I collected the pilot data",
		State:       state,
	}
}

func projectNode() *entity.Node {
	return &entity.Node{
		ID:             "node-1",
		Title:          "Pilot study",
		CreatorID:      "alice",
		ContributorIDs: []string{"alice"},
		AdminIDs:       []string{"alice"},
	}
}

func TestNodeRequestSubmit(t *testing.T) {
	env := newNodeRequestsEnv(accessRequest(workflow.StateInitial), projectNode())

	got, err := env.machine.Run(context.Background(), "req-1", workflow.TriggerSubmit,
		FireInput{ActorID: "bob"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StatePending, got.State)
	notifies := env.events.ofType(event.TypeNotifyRequested)
	require.Len(t, notifies, 1)
	assert.Equal(t, "access_request_submitted", notifies[0].GetPayloadString("template"))
	assert.Equal(t, []string{"alice"}, notifies[0].GetPayloadStrings("recipients"))
}

func TestNodeRequestSubmitByContributor(t *testing.T) {
	request := accessRequest(workflow.StateInitial)
	node := projectNode()
	node.ContributorIDs = append(node.ContributorIDs, "bob")
	env := newNodeRequestsEnv(request, node)

	_, err := env.machine.Run(context.Background(), "req-1", workflow.TriggerSubmit,
		FireInput{ActorID: "bob"})

	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, workflow.StateInitial, request.State)
}

func TestNodeRequestAcceptAddsContributor(t *testing.T) {
	node := projectNode()
	env := newNodeRequestsEnv(accessRequest(workflow.StatePending), node)

	got, err := env.machine.Run(context.Background(), "req-1", workflow.TriggerAccept,
		FireInput{ActorID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StateAccepted, got.State)
	assert.True(t, node.HasContributor("bob"))
	assert.Equal(t, 1, env.nodes.updates)
}

func TestNodeRequestAcceptRequiresNodeAdmin(t *testing.T) {
	request := accessRequest(workflow.StatePending)
	env := newNodeRequestsEnv(request, projectNode())

	_, err := env.machine.Run(context.Background(), "req-1", workflow.TriggerAccept,
		FireInput{ActorID: "carol"})

	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Equal(t, workflow.StatePending, request.State)
	assert.Empty(t, env.actions.actions)
}

func TestNodeRequestHasNoWithdrawRow(t *testing.T) {
	env := newNodeRequestsEnv(accessRequest(workflow.StatePending), projectNode())

	_, err := env.machine.Run(context.Background(), "req-1", workflow.TriggerWithdraw,
		FireInput{ActorID: "bob"})

	var terr *workflow.InvalidTriggerError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, workflow.TriggerWithdraw, terr.Trigger)
}

func TestNodeRequestCanView(t *testing.T) {
	env := newNodeRequestsEnv(accessRequest(workflow.StatePending), projectNode())
	request, node := accessRequest(workflow.StatePending), projectNode()

	assert.True(t, env.machine.CanView(request, node, "bob"), "requester")
	assert.True(t, env.machine.CanView(request, node, "alice"), "node admin")
	assert.False(t, env.machine.CanView(request, node, "carol"))
}

type preprintRequestsEnv struct {
	requests  *mockPreprintRequestRepo
	preprints *mockPreprintRepo
	actions   *mockActionRepo
	perms     *mockPerms
	events    *mockDispatcher
	machine   *PreprintRequestsMachine
}

func newPreprintRequestsEnv(request *entity.PreprintRequest, preprint *entity.Preprint, provider *entity.Provider) *preprintRequestsEnv {
	env := &preprintRequestsEnv{
		requests:  newMockPreprintRequestRepo(request),
		preprints: newMockPreprintRepo(preprint),
		actions:   &mockActionRepo{},
		perms:     &mockPerms{grants: map[string][]entity.Capability{}},
		events:    &mockDispatcher{},
	}
	providers := &mockProviderRepo{provider: provider}
	tx := &mockTxManager{}
	reviews := NewReviewsMachine(
		env.preprints, providers, env.actions, env.perms, tx, env.events, &mockLogger{})
	reviews.now = fixedNow
	env.machine = NewPreprintRequestsMachine(
		env.requests, env.preprints, providers, reviews, env.actions,
		env.perms, tx, env.events, &mockLogger{})
	env.machine.now = fixedNow
	return env
}

func withdrawalRequest(state workflow.State) *entity.PreprintRequest {
	return &entity.PreprintRequest{
		ID:          "preq-1",
		PreprintID:  "pp-1",
		CreatorID:   "alice",
		RequestType: entity.RequestWithdrawal,
		Comment:     "results are not reproducible",
		State:       state,
	}
}

func TestPreprintRequestSubmitWithdrawalByNonCreator(t *testing.T) {
	request := withdrawalRequest(workflow.StateInitial)
	request.CreatorID = "bob"
	preprint := publishablePreprint(workflow.StateAccepted)
	provider := &entity.Provider{ID: "psyarxiv", ReviewsWorkflow: entity.PolicyPre}
	env := newPreprintRequestsEnv(request, preprint, provider)

	_, err := env.machine.Run(context.Background(), "preq-1", workflow.TriggerSubmit,
		FireInput{ActorID: "bob"})

	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Equal(t, workflow.StateInitial, request.State)
}

func TestPreprintRequestAcceptWithdrawsPreprint(t *testing.T) {
	request := withdrawalRequest(workflow.StatePending)
	preprint := publishablePreprint(workflow.StateAccepted)
	preprint.IsPublished = true
	provider := &entity.Provider{ID: "psyarxiv", ReviewsWorkflow: entity.PolicyPre}
	env := newPreprintRequestsEnv(request, preprint, provider)
	env.perms.grants["mod"] = []entity.Capability{entity.CapabilityWithdrawSubmissions}

	got, err := env.machine.Run(context.Background(), "preq-1", workflow.TriggerAccept,
		FireInput{ActorID: "mod"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StateAccepted, got.State)
	assert.Equal(t, workflow.StateWithdrawn, preprint.ReviewsState)
	assert.False(t, preprint.IsPublished)
	assert.Equal(t, request.Comment, preprint.WithdrawalJustification)

	// One action for the request decision, one for the preprint withdrawal
	require.Len(t, env.actions.byTarget(entity.TargetPreprintRequest), 1)
	preprintActions := env.actions.byTarget(entity.TargetPreprint)
	require.Len(t, preprintActions, 1)
	assert.Equal(t, workflow.TriggerWithdraw, preprintActions[0].Trigger)
	assert.True(t, preprintActions[0].Auto)

	// The nested fire's effects drain with the request's
	reindexes := env.events.ofType(event.TypeReindexRequested)
	require.Len(t, reindexes, 1)
	assert.Equal(t, "pp-1", reindexes[0].TargetID)
	assert.Equal(t, string(entity.TargetPreprint), reindexes[0].TargetKind)
}

func TestPreprintRequestRejectLeavesPreprintAlone(t *testing.T) {
	request := withdrawalRequest(workflow.StatePending)
	preprint := publishablePreprint(workflow.StateAccepted)
	preprint.IsPublished = true
	provider := &entity.Provider{ID: "psyarxiv", ReviewsWorkflow: entity.PolicyPre}
	env := newPreprintRequestsEnv(request, preprint, provider)
	env.perms.grants["mod"] = []entity.Capability{entity.CapabilityWithdrawSubmissions}

	got, err := env.machine.Run(context.Background(), "preq-1", workflow.TriggerReject,
		FireInput{ActorID: "mod"})
	require.NoError(t, err)

	assert.Equal(t, workflow.StateRejected, got.State)
	assert.Equal(t, workflow.StateAccepted, preprint.ReviewsState)
	assert.True(t, preprint.IsPublished)
	assert.Empty(t, env.actions.byTarget(entity.TargetPreprint))
}

func TestPreprintRequestDecisionRequiresModerator(t *testing.T) {
	request := withdrawalRequest(workflow.StatePending)
	preprint := publishablePreprint(workflow.StateAccepted)
	provider := &entity.Provider{ID: "psyarxiv", ReviewsWorkflow: entity.PolicyPre}
	env := newPreprintRequestsEnv(request, preprint, provider)

	// The preprint's creator cannot decide their own withdrawal request
	_, err := env.machine.Run(context.Background(), "preq-1", workflow.TriggerAccept,
		FireInput{ActorID: "alice"})

	require.ErrorIs(t, err, workflow.ErrPermissions)
	assert.Equal(t, workflow.StatePending, request.State)
	assert.Equal(t, workflow.StateAccepted, preprint.ReviewsState)
}
