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

// providerPublicStates lists, per moderation policy, the reviews states in
// which an accepted artifact is publicly visible. An unmoderated provider
// publishes on submission; a pre-moderation provider only after accept.
var providerPublicStates = map[entity.ModerationPolicy][]workflow.State{
	entity.PolicyNone: {workflow.StatePending, workflow.StateAccepted},
	entity.PolicyPre:  {workflow.StateAccepted},
	entity.PolicyPost: {workflow.StatePending, workflow.StateAccepted},
}

// ReviewsMachine runs the Reviewable workflow for preprints
type ReviewsMachine struct {
	preprints port.PreprintRepository
	providers port.ProviderRepository
	actions   port.ActionRepository
	perms     port.PermissionOracle
	tx        port.TransactionManager
	events    dispatcher.Dispatcher
	logger    Logger

	now func() time.Time
}

// NewReviewsMachine creates the preprint review machine
func NewReviewsMachine(
	preprints port.PreprintRepository,
	providers port.ProviderRepository,
	actions port.ActionRepository,
	perms port.PermissionOracle,
	tx port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) *ReviewsMachine {
	return &ReviewsMachine{
		preprints: preprints,
		providers: providers,
		actions:   actions,
		perms:     perms,
		tx:        tx,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one trigger against a preprint inside a transaction and
// drains the recorded side effects after commit.
//
// An unmoderated provider's submission is auto-accepted in the same
// transaction: the submit fire lands in pending, then the system actor
// fires accept, so publication still flows through the engine and leaves
// a complete audit trail.
func (m *ReviewsMachine) Run(ctx context.Context, preprintID string, trigger workflow.Trigger, in FireInput) (*entity.Preprint, error) {
	preprint, err := m.preprints.GetByID(ctx, preprintID)
	if err != nil {
		return nil, fmt.Errorf("load preprint: %w", err)
	}
	provider, err := m.providers.GetByID(ctx, preprint.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	fires := make([]*workflow.Fire, 0, 2)
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		f, err := m.fire(txCtx, preprint, provider, trigger, in)
		if err != nil {
			return err
		}
		fires = append(fires, f)

		if trigger == workflow.TriggerSubmit && !provider.IsModerated() && preprint.ReviewsState == workflow.StatePending {
			auto, err := m.fire(txCtx, preprint, provider, workflow.TriggerAccept, FireInput{
				ActorID: entity.SystemUserID,
				Auto:    true,
			})
			if err != nil {
				return err
			}
			fires = append(fires, auto)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range fires {
		drainEffects(ctx, m.events, f, preprint.TargetRef())
	}
	return preprint, nil
}

// fire runs a single engine fire within the caller's transaction scope
func (m *ReviewsMachine) fire(ctx context.Context, preprint *entity.Preprint, provider *entity.Provider, trigger workflow.Trigger, in FireInput) (*workflow.Fire, error) {
	hooks := &preprintHooks{machine: m, preprint: preprint, provider: provider}
	engine := workflow.NewMachine[workflow.ReviewableHooks](
		workflow.FamilyReviewable, workflow.ReviewableTransitions(), hooks)

	f := in.fire(preprint, trigger)
	if err := engine.Fire(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// preprintHooks implements workflow.ReviewableHooks for one fire
type preprintHooks struct {
	machine  *ReviewsMachine
	preprint *entity.Preprint
	provider *entity.Provider
}

func (h *preprintHooks) ResubmissionAllowed(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.provider.ResubmissionAllowed, nil
}

func (h *preprintHooks) ValidateSubmit(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if f.ActorID != h.preprint.CreatorID {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "submit own preprint"}
	}
	return nil
}

func (h *preprintHooks) ValidateAcceptReject(ctx context.Context, f *workflow.Fire) error {
	return h.requireCapability(ctx, f)
}

func (h *preprintHooks) ValidateEditComment(ctx context.Context, f *workflow.Fire) error {
	return h.requireCapability(ctx, f)
}

func (h *preprintHooks) ValidateWithdraw(ctx context.Context, f *workflow.Fire) error {
	return h.requireCapability(ctx, f)
}

func (h *preprintHooks) requireCapability(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	capability, ok := entity.ReviewTriggerCapabilities[f.Trigger]
	if !ok {
		return nil
	}
	allowed, err := h.machine.perms.HasProviderCapability(ctx, f.ActorID, capability, h.provider.ID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: string(capability)}
	}
	return nil
}

func (h *preprintHooks) SaveAction(ctx context.Context, f *workflow.Fire) error {
	stamp(f, h.machine.now)
	action := entity.NewAction(h.preprint.TargetRef(), f)
	if err := h.machine.actions.Create(ctx, action); err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (h *preprintHooks) UpdateLastTransitioned(ctx context.Context, f *workflow.Fire) error {
	at := stamp(f, h.machine.now)
	h.preprint.DateLastTransitioned = &at
	return nil
}

func (h *preprintHooks) SaveChanges(ctx context.Context, f *workflow.Fire) error {
	if h.isPublicState(f.To) && !h.preprint.IsPublished {
		if err := h.preprint.IsPublishable(); err != nil {
			return err
		}
		at := stamp(f, h.machine.now)
		h.preprint.IsPublished = true
		h.preprint.DatePublished = &at
		h.preprint.EverPublic = true
		f.AddEffect(workflow.Effect{
			Kind:     workflow.EffectReindex,
			TargetID: h.preprint.ID,
		})
	}

	if f.To == workflow.StateWithdrawn {
		at := stamp(f, h.machine.now)
		h.preprint.IsPublished = false
		h.preprint.DateWithdrawn = &at
		h.preprint.WithdrawalJustification = f.Comment
		f.AddEffect(workflow.Effect{
			Kind:     workflow.EffectReindex,
			TargetID: h.preprint.ID,
		})
	}

	h.preprint.UpdatedAt = stamp(f, h.machine.now)
	if err := h.machine.preprints.Update(ctx, h.preprint); err != nil {
		return fmt.Errorf("save preprint: %w", err)
	}
	return nil
}

func (h *preprintHooks) isPublicState(s workflow.State) bool {
	for _, public := range providerPublicStates[h.provider.ReviewsWorkflow] {
		if public == s {
			return true
		}
	}
	return false
}

func (h *preprintHooks) NotifySubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "reviews_submission_confirmation")
	return nil
}

func (h *preprintHooks) NotifyResubmit(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "reviews_resubmission_confirmation")
	return nil
}

func (h *preprintHooks) NotifyAcceptReject(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "reviews_submission_status")
	return nil
}

func (h *preprintHooks) NotifyEditComment(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "reviews_update_comment")
	return nil
}

func (h *preprintHooks) NotifyWithdraw(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "reviews_submission_withdrawn")
	return nil
}

func (h *preprintHooks) notify(f *workflow.Fire, template string) {
	f.AddEffect(workflow.Effect{
		Kind:       workflow.EffectNotify,
		Template:   template,
		TargetID:   h.preprint.ID,
		ProviderID: h.provider.ID,
		Recipients: []string{h.preprint.CreatorID},
		Context: map[string]any{
			"trigger":    f.Trigger.String(),
			"from_state": f.From.String(),
			"to_state":   f.To.String(),
			"comment":    f.Comment,
		},
	})
}
