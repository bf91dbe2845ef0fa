package machines

import (
	"context"
	"fmt"
	"time"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// NodeRequestsMachine runs the Default workflow for node access requests.
// Accepting a request adds the requester as a contributor on the node.
type NodeRequestsMachine struct {
	requests port.NodeRequestRepository
	nodes    port.NodeRepository
	actions  port.ActionRepository
	tx       port.TransactionManager
	events   dispatcher.Dispatcher
	logger   Logger

	now func() time.Time
}

// NewNodeRequestsMachine creates the node request machine
func NewNodeRequestsMachine(
	requests port.NodeRequestRepository,
	nodes port.NodeRepository,
	actions port.ActionRepository,
	tx port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) *NodeRequestsMachine {
	return &NodeRequestsMachine{
		requests: requests,
		nodes:    nodes,
		actions:  actions,
		tx:       tx,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one trigger against a node request
func (m *NodeRequestsMachine) Run(ctx context.Context, requestID string, trigger workflow.Trigger, in FireInput) (*entity.NodeRequest, error) {
	request, err := m.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load node request: %w", err)
	}
	node, err := m.nodes.GetByID(ctx, request.NodeID)
	if err != nil {
		return nil, fmt.Errorf("load node: %w", err)
	}

	hooks := &nodeRequestHooks{machine: m, request: request, node: node}
	engine := workflow.NewMachine[workflow.ReviewableHooks](
		workflow.FamilyDefault, workflow.DefaultTransitions(), hooks)

	f := in.fire(request, trigger)
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return engine.Fire(txCtx, f)
	})
	if err != nil {
		return nil, err
	}

	drainEffects(ctx, m.events, f, request.TargetRef())
	return request, nil
}

// CanView reports whether a user may read the request: only the requester
// and node admins.
func (m *NodeRequestsMachine) CanView(request *entity.NodeRequest, node *entity.Node, userID string) bool {
	return request.CreatorID == userID || node.HasAdmin(userID)
}

type nodeRequestHooks struct {
	machine *NodeRequestsMachine
	request *entity.NodeRequest
	node    *entity.Node
}

func (h *nodeRequestHooks) ResubmissionAllowed(ctx context.Context, f *workflow.Fire) (bool, error) {
	// A rejected access request may always be re-raised
	return true, nil
}

func (h *nodeRequestHooks) ValidateSubmit(ctx context.Context, f *workflow.Fire) error {
	if f.ActorID != h.request.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "submit own request"}
	}
	if h.node.HasContributor(f.ActorID) {
		return workflow.NewValidationError(
			"user %s is already a contributor on node %s", f.ActorID, h.node.ID)
	}
	return nil
}

func (h *nodeRequestHooks) ValidateAcceptReject(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if !h.node.HasAdmin(f.ActorID) {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "node admin"}
	}
	return nil
}

func (h *nodeRequestHooks) ValidateEditComment(ctx context.Context, f *workflow.Fire) error {
	if f.ActorID != h.request.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "edit own request comment"}
	}
	if h.node.HasContributor(f.ActorID) {
		return workflow.NewValidationError(
			"user %s is already a contributor on node %s", f.ActorID, h.node.ID)
	}
	return nil
}

func (h *nodeRequestHooks) ValidateWithdraw(ctx context.Context, f *workflow.Fire) error {
	// Node requests use the default table, which has no withdraw row
	return &workflow.PermissionsError{ActorID: f.ActorID}
}

func (h *nodeRequestHooks) SaveAction(ctx context.Context, f *workflow.Fire) error {
	stamp(f, h.machine.now)
	if err := h.machine.actions.Create(ctx, entity.NewAction(h.request.TargetRef(), f)); err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (h *nodeRequestHooks) UpdateLastTransitioned(ctx context.Context, f *workflow.Fire) error {
	at := stamp(f, h.machine.now)
	h.request.DateLastTransitioned = &at
	return nil
}

func (h *nodeRequestHooks) SaveChanges(ctx context.Context, f *workflow.Fire) error {
	if f.Trigger == workflow.TriggerEditComment || f.Comment != "" {
		h.request.Comment = f.Comment
	}
	h.request.UpdatedAt = stamp(f, h.machine.now)
	if err := h.machine.requests.Update(ctx, h.request); err != nil {
		return fmt.Errorf("save request: %w", err)
	}

	if f.To == workflow.StateAccepted && !h.node.HasContributor(h.request.CreatorID) {
		h.node.ContributorIDs = append(h.node.ContributorIDs, h.request.CreatorID)
		if err := h.machine.nodes.Update(ctx, h.node); err != nil {
			return fmt.Errorf("add contributor: %w", err)
		}
	}
	return nil
}

func (h *nodeRequestHooks) NotifySubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "access_request_submitted", h.node.AdminIDs)
	return nil
}

func (h *nodeRequestHooks) NotifyResubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "access_request_submitted", h.node.AdminIDs)
	return nil
}

func (h *nodeRequestHooks) NotifyAcceptReject(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "access_request_decided", []string{h.request.CreatorID})
	return nil
}

func (h *nodeRequestHooks) NotifyEditComment(ctx context.Context, f *workflow.Fire) error {
	// Comment edits on access requests notify nobody
	return nil
}

func (h *nodeRequestHooks) NotifyWithdraw(ctx context.Context, f *workflow.Fire) error {
	return nil
}

func (h *nodeRequestHooks) notify(f *workflow.Fire, template string, recipients []string) {
	f.AddEffect(workflow.Effect{
		Kind:       workflow.EffectNotify,
		Template:   template,
		TargetID:   h.request.ID,
		Recipients: recipients,
		Context: map[string]any{
			"node_id":  h.node.ID,
			"trigger":  f.Trigger.String(),
			"to_state": f.To.String(),
		},
	})
}

// PreprintRequestsMachine runs the Default workflow for preprint withdrawal
// requests. Accepting a withdrawal request withdraws the preprint through
// the reviews machine in the same transaction.
type PreprintRequestsMachine struct {
	requests  port.PreprintRequestRepository
	preprints port.PreprintRepository
	providers port.ProviderRepository
	reviews   *ReviewsMachine
	actions   port.ActionRepository
	perms     port.PermissionOracle
	tx        port.TransactionManager
	events    dispatcher.Dispatcher
	logger    Logger

	now func() time.Time
}

// NewPreprintRequestsMachine creates the preprint request machine
func NewPreprintRequestsMachine(
	requests port.PreprintRequestRepository,
	preprints port.PreprintRepository,
	providers port.ProviderRepository,
	reviews *ReviewsMachine,
	actions port.ActionRepository,
	perms port.PermissionOracle,
	tx port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) *PreprintRequestsMachine {
	return &PreprintRequestsMachine{
		requests:  requests,
		preprints: preprints,
		providers: providers,
		reviews:   reviews,
		actions:   actions,
		perms:     perms,
		tx:        tx,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one trigger against a preprint request
func (m *PreprintRequestsMachine) Run(ctx context.Context, requestID string, trigger workflow.Trigger, in FireInput) (*entity.PreprintRequest, error) {
	request, err := m.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load preprint request: %w", err)
	}
	preprint, err := m.preprints.GetByID(ctx, request.PreprintID)
	if err != nil {
		return nil, fmt.Errorf("load preprint: %w", err)
	}
	provider, err := m.providers.GetByID(ctx, preprint.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	hooks := &preprintRequestHooks{machine: m, request: request, preprint: preprint, provider: provider}
	engine := workflow.NewMachine[workflow.ReviewableHooks](
		workflow.FamilyDefault, workflow.DefaultTransitions(), hooks)

	f := in.fire(request, trigger)
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return engine.Fire(txCtx, f)
	})
	if err != nil {
		return nil, err
	}

	drainEffects(ctx, m.events, f, request.TargetRef())
	return request, nil
}

type preprintRequestHooks struct {
	machine  *PreprintRequestsMachine
	request  *entity.PreprintRequest
	preprint *entity.Preprint
	provider *entity.Provider
}

func (h *preprintRequestHooks) ResubmissionAllowed(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.provider.ResubmissionAllowed, nil
}

func (h *preprintRequestHooks) ValidateSubmit(ctx context.Context, f *workflow.Fire) error {
	if f.ActorID != h.request.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "submit own request"}
	}
	if h.request.RequestType == entity.RequestWithdrawal && f.ActorID != h.preprint.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "withdraw own preprint"}
	}
	return nil
}

func (h *preprintRequestHooks) ValidateAcceptReject(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	// Withdrawal requests are decided by provider moderators
	allowed, err := h.machine.perms.HasProviderCapability(
		ctx, f.ActorID, entity.CapabilityWithdrawSubmissions, h.provider.ID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: string(entity.CapabilityWithdrawSubmissions)}
	}
	return nil
}

func (h *preprintRequestHooks) ValidateEditComment(ctx context.Context, f *workflow.Fire) error {
	if f.ActorID != h.request.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "edit own request comment"}
	}
	return nil
}

func (h *preprintRequestHooks) ValidateWithdraw(ctx context.Context, f *workflow.Fire) error {
	return &workflow.PermissionsError{ActorID: f.ActorID}
}

func (h *preprintRequestHooks) SaveAction(ctx context.Context, f *workflow.Fire) error {
	stamp(f, h.machine.now)
	if err := h.machine.actions.Create(ctx, entity.NewAction(h.request.TargetRef(), f)); err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (h *preprintRequestHooks) UpdateLastTransitioned(ctx context.Context, f *workflow.Fire) error {
	at := stamp(f, h.machine.now)
	h.request.DateLastTransitioned = &at
	return nil
}

func (h *preprintRequestHooks) SaveChanges(ctx context.Context, f *workflow.Fire) error {
	if f.Trigger == workflow.TriggerEditComment || f.Comment != "" {
		h.request.Comment = f.Comment
	}
	h.request.UpdatedAt = stamp(f, h.machine.now)
	if err := h.machine.requests.Update(ctx, h.request); err != nil {
		return fmt.Errorf("save request: %w", err)
	}

	// Accepting a withdrawal request withdraws the preprint itself,
	// through its own machine so the preprint gets its own audit action.
	if f.To == workflow.StateAccepted && h.request.RequestType == entity.RequestWithdrawal {
		wf, err := h.machine.reviews.fire(ctx, h.preprint, h.provider, workflow.TriggerWithdraw, FireInput{
			ActorID: f.ActorID,
			Comment: h.request.Comment,
			Auto:    true,
		})
		if err != nil {
			return fmt.Errorf("withdraw preprint: %w", err)
		}
		for _, eff := range wf.Effects() {
			if eff.TargetKind == "" {
				eff.TargetKind = string(entity.TargetPreprint)
			}
			f.AddEffect(eff)
		}
	}
	return nil
}

func (h *preprintRequestHooks) NotifySubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "preprint_withdrawal_requested")
	return nil
}

func (h *preprintRequestHooks) NotifyResubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "preprint_withdrawal_requested")
	return nil
}

func (h *preprintRequestHooks) NotifyAcceptReject(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "preprint_withdrawal_decided")
	return nil
}

func (h *preprintRequestHooks) NotifyEditComment(ctx context.Context, f *workflow.Fire) error {
	return nil
}

func (h *preprintRequestHooks) NotifyWithdraw(ctx context.Context, f *workflow.Fire) error {
	return nil
}

func (h *preprintRequestHooks) notify(f *workflow.Fire, template string) {
	f.AddEffect(workflow.Effect{
		Kind:       workflow.EffectNotify,
		Template:   template,
		TargetID:   h.request.ID,
		ProviderID: h.provider.ID,
		Recipients: []string{h.request.CreatorID},
		Context: map[string]any{
			"preprint_id": h.preprint.ID,
			"trigger":     f.Trigger.String(),
			"to_state":    f.To.String(),
		},
	})
}
