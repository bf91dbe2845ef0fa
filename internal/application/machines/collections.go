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

// CollectionsMachine runs the collection-submission workflow. Submit
// routing depends on the collection provider's moderation policy, and on
// hybrid providers a submission by a moderator-contributor skips the queue.
type CollectionsMachine struct {
	submissions port.CollectionSubmissionRepository
	providers   port.ProviderRepository
	actions     port.ActionRepository
	perms       port.PermissionOracle
	tx          port.TransactionManager
	events      dispatcher.Dispatcher
	logger      Logger

	now func() time.Time
}

// NewCollectionsMachine creates the collections machine
func NewCollectionsMachine(
	submissions port.CollectionSubmissionRepository,
	providers port.ProviderRepository,
	actions port.ActionRepository,
	perms port.PermissionOracle,
	tx port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) *CollectionsMachine {
	return &CollectionsMachine{
		submissions: submissions,
		providers:   providers,
		actions:     actions,
		perms:       perms,
		tx:          tx,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one trigger against a collection submission
func (m *CollectionsMachine) Run(ctx context.Context, submissionID string, trigger workflow.Trigger, in FireInput) (*entity.CollectionSubmission, error) {
	submission, err := m.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("load collection submission: %w", err)
	}
	provider, err := m.providers.GetByID(ctx, submission.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	hooks := &collectionHooks{machine: m, submission: submission, provider: provider}
	engine := workflow.NewMachine[workflow.CollectionSubmissionHooks](
		workflow.FamilyCollectionSubmission, workflow.CollectionSubmissionTransitions(), hooks)

	f := in.fire(submission, trigger)
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return engine.Fire(txCtx, f)
	})
	if err != nil {
		return nil, err
	}

	drainEffects(ctx, m.events, f, submission.TargetRef())
	return submission, nil
}

// collectionHooks implements workflow.CollectionSubmissionHooks for one fire
type collectionHooks struct {
	machine    *CollectionsMachine
	submission *entity.CollectionSubmission
	provider   *entity.Provider
}

func (h *collectionHooks) IsModerated(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.provider.IsModerated() && !h.provider.IsHybridModerated(), nil
}

func (h *collectionHooks) IsHybridModerated(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.provider.IsHybridModerated(), nil
}

func (h *collectionHooks) IsSubmittedByModeratorContributor(ctx context.Context, f *workflow.Fire) (bool, error) {
	if !h.submission.HasContributor(f.ActorID) {
		return false, nil
	}
	return h.machine.perms.HasProviderCapability(
		ctx, f.ActorID, entity.CapabilityAcceptSubmissions, h.provider.ID)
}

func (h *collectionHooks) ValidateSubmit(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if !h.submission.HasContributor(f.ActorID) {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "node contributor"}
	}
	return nil
}

func (h *collectionHooks) ValidateModerator(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	cap := entity.CapabilityAcceptSubmissions
	if f.Trigger == workflow.TriggerReject {
		cap = entity.CapabilityRejectSubmissions
	}
	allowed, err := h.machine.perms.HasProviderCapability(ctx, f.ActorID, cap, h.provider.ID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: string(cap)}
	}
	return nil
}

// ValidateRemove allows a node admin or a provider moderator to pull an
// accepted submission out of the collection.
func (h *collectionHooks) ValidateRemove(ctx context.Context, f *workflow.Fire) error {
	if f.Auto || h.submission.HasNodeAdmin(f.ActorID) {
		return nil
	}
	allowed, err := h.machine.perms.HasProviderCapability(
		ctx, f.ActorID, entity.CapabilityWithdrawSubmissions, h.provider.ID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "node admin or moderator"}
	}
	return nil
}

func (h *collectionHooks) ValidateResubmit(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if !h.submission.HasNodeAdmin(f.ActorID) {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "node admin"}
	}
	return nil
}

func (h *collectionHooks) ValidateCancel(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if f.ActorID != h.submission.CreatorID && !h.submission.HasNodeAdmin(f.ActorID) {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "submitter or node admin"}
	}
	return nil
}

func (h *collectionHooks) SaveAction(ctx context.Context, f *workflow.Fire) error {
	stamp(f, h.machine.now)
	if err := h.machine.actions.Create(ctx, entity.NewAction(h.submission.TargetRef(), f)); err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (h *collectionHooks) UpdateLastTransitioned(ctx context.Context, f *workflow.Fire) error {
	at := stamp(f, h.machine.now)
	h.submission.DateLastTransitioned = &at
	return nil
}

func (h *collectionHooks) SaveChanges(ctx context.Context, f *workflow.Fire) error {
	if f.Comment != "" {
		h.submission.Comment = f.Comment
	}
	h.submission.UpdatedAt = stamp(f, h.machine.now)
	if err := h.machine.submissions.Update(ctx, h.submission); err != nil {
		return fmt.Errorf("save collection submission: %w", err)
	}
	// Membership changes surface in collection search
	if f.To == workflow.StateAccepted || f.To == workflow.StateRemoved {
		f.AddEffect(workflow.Effect{
			Kind:       workflow.EffectReindex,
			TargetID:   h.submission.ID,
			ProviderID: h.provider.ID,
		})
	}
	return nil
}

func (h *collectionHooks) NotifyPending(ctx context.Context, f *workflow.Fire) error {
	// Moderator recipients are resolved by the notification handler
	h.notify(f, "collection_submission_pending", nil)
	return nil
}

func (h *collectionHooks) NotifyAccepted(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "collection_submission_accepted", h.submission.NodeContributorIDs)
	return nil
}

func (h *collectionHooks) NotifyRejected(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "collection_submission_rejected", h.submission.NodeContributorIDs)
	return nil
}

func (h *collectionHooks) NotifyRemoved(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "collection_submission_removed", h.submission.NodeContributorIDs)
	return nil
}

func (h *collectionHooks) NotifyResubmitted(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "collection_submission_resubmitted", nil)
	return nil
}

func (h *collectionHooks) NotifyCancelled(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "collection_submission_cancelled", h.submission.NodeContributorIDs)
	return nil
}

func (h *collectionHooks) notify(f *workflow.Fire, template string, recipients []string) {
	f.AddEffect(workflow.Effect{
		Kind:       workflow.EffectNotify,
		Template:   template,
		TargetID:   h.submission.ID,
		ProviderID: h.provider.ID,
		Recipients: recipients,
		Context: map[string]any{
			"collection_id": h.submission.CollectionID,
			"node_id":       h.submission.NodeID,
			"trigger":       f.Trigger.String(),
			"to_state":      f.To.String(),
		},
	})
}
