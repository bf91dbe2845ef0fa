package machines

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openscience/moderation/internal/application/dispatcher"
	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/event"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// forceWithdrawPrefix marks a retraction initiated by a moderator rather
// than a contributor admin.
const forceWithdrawPrefix = "Force withdrawn by moderator: "

// SanctionsMachine drives the internal approval workflow of registration
// sanctions and keeps the owning registration tree's moderation state
// derived from it. Admin decisions arrive through emailed one-time tokens;
// moderator decisions through capability-checked accept/reject calls; the
// sweep methods finalize sanctions whose clocks have run out.
type SanctionsMachine struct {
	sanctions     port.SanctionRepository
	registrations port.RegistrationRepository
	providers     port.ProviderRepository
	actions       port.ActionRepository
	moderation    *RegistrationModerationService
	perms         port.PermissionOracle
	tokens        port.TokenService
	tx            port.TransactionManager
	events        dispatcher.Dispatcher
	logger        Logger

	now func() time.Time
}

// NewSanctionsMachine creates the sanctions machine
func NewSanctionsMachine(
	sanctions port.SanctionRepository,
	registrations port.RegistrationRepository,
	providers port.ProviderRepository,
	actions port.ActionRepository,
	moderation *RegistrationModerationService,
	perms port.PermissionOracle,
	tokens port.TokenService,
	tx port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) *SanctionsMachine {
	return &SanctionsMachine{
		sanctions:     sanctions,
		registrations: registrations,
		providers:     providers,
		actions:       actions,
		moderation:    moderation,
		perms:         perms,
		tokens:        tokens,
		tx:            tx,
		events:        events,
		logger:        logger,
		now:           time.Now,
	}
}

// InitiateInput describes a new sanction
type InitiateInput struct {
	Type           workflow.SanctionType
	RegistrationID string
	InitiatorID    string
	Justification  string
	// EmbargoEndDate is required for embargoes and ignored otherwise
	EmbargoEndDate *time.Time
}

// Initiate creates a sanction on the registration and submits it for admin
// approval in one transaction.
func (m *SanctionsMachine) Initiate(ctx context.Context, in InitiateInput) (*entity.Sanction, error) {
	if !in.Type.IsValid() {
		return nil, workflow.NewValidationError("unknown sanction type %q", string(in.Type))
	}
	if in.Type == workflow.SanctionEmbargo && in.EmbargoEndDate == nil {
		return nil, workflow.NewValidationError("embargo requires an end date")
	}

	reg, err := m.registrations.GetByID(ctx, in.RegistrationID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if !reg.IsRoot() {
		return nil, workflow.NewValidationError(
			"sanctions target the root registration, not component %s", reg.ID)
	}

	now := m.now().UTC()
	sanction := &entity.Sanction{
		ID:             uuid.New().String(),
		Type:           in.Type,
		RegistrationID: reg.ID,
		InitiatorID:    in.InitiatorID,
		ApprovalStage:  workflow.StateInProgress,
		EmbargoEndDate: in.EmbargoEndDate,
		Justification:  in.Justification,
		Revisable:      in.Type == workflow.SanctionRetraction,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var f *workflow.Fire
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.sanctions.Create(txCtx, sanction); err != nil {
			return fmt.Errorf("create sanction: %w", err)
		}
		reg.ActiveSanctionID = sanction.ID
		f, err = m.fire(txCtx, sanction, reg, workflow.TriggerSubmit, FireInput{
			ActorID: in.InitiatorID,
			Comment: in.Justification,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.finish(ctx, f, sanction, reg)
	return sanction, nil
}

// ApproveWithToken records one admin's approval. The sanction's approval
// stage only advances once every admin slot has approved; until then the
// decision is persisted on the slot alone.
func (m *SanctionsMachine) ApproveWithToken(ctx context.Context, sanctionID, userID, token string) (*entity.Sanction, error) {
	sanction, reg, err := m.load(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	if err := m.tokens.ValidateToken(token, userID, sanctionID, port.TokenApprove); err != nil {
		return nil, &workflow.PermissionsError{ActorID: userID, Capability: "valid approval token"}
	}
	slot := sanction.ApprovalFor(userID)
	if slot == nil {
		return nil, &workflow.PermissionsError{ActorID: userID, Capability: "sanction approval slot"}
	}

	now := m.now().UTC()
	if !slot.Approved {
		slot.Approved = true
		slot.DecidedAt = &now
	}

	if !sanction.AllApproved() {
		sanction.UpdatedAt = now
		if err := m.sanctions.Update(ctx, sanction); err != nil {
			return nil, fmt.Errorf("save approval: %w", err)
		}
		return sanction, nil
	}

	var f *workflow.Fire
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		f, err = m.fire(txCtx, sanction, reg, workflow.TriggerApprove, FireInput{ActorID: userID})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.finish(ctx, f, sanction, reg)
	return sanction, nil
}

// RejectWithToken applies one admin's rejection, which ends the approval
// round immediately.
func (m *SanctionsMachine) RejectWithToken(ctx context.Context, sanctionID, userID, token string) (*entity.Sanction, error) {
	sanction, reg, err := m.load(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	if err := m.tokens.ValidateToken(token, userID, sanctionID, port.TokenReject); err != nil {
		return nil, &workflow.PermissionsError{ActorID: userID, Capability: "valid rejection token"}
	}

	var f *workflow.Fire
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		f, err = m.fire(txCtx, sanction, reg, workflow.TriggerReject, FireInput{ActorID: userID})
		return err
	})
	if err != nil {
		return nil, err
	}
	m.finish(ctx, f, sanction, reg)
	return sanction, nil
}

// Accept is the moderator's acceptance of a pending-moderation sanction
func (m *SanctionsMachine) Accept(ctx context.Context, sanctionID string, in FireInput) (*entity.Sanction, error) {
	return m.run(ctx, sanctionID, workflow.TriggerAccept, in)
}

// Reject is the moderator's rejection of a pending-moderation sanction
func (m *SanctionsMachine) Reject(ctx context.Context, sanctionID string, in FireInput) (*entity.Sanction, error) {
	return m.run(ctx, sanctionID, workflow.TriggerReject, in)
}

// ForceWithdraw lets a moderator withdraw a registration without contributor
// consent: a retraction is created, submitted and accepted in one
// transaction. Registration admins who are not moderators cannot do this.
func (m *SanctionsMachine) ForceWithdraw(ctx context.Context, registrationID, actorID, comment string) (*entity.Sanction, error) {
	reg, err := m.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	allowed, err := m.perms.HasProviderCapability(ctx, actorID, entity.CapabilityWithdrawSubmissions, reg.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return nil, &workflow.PermissionsError{ActorID: actorID, Capability: string(entity.CapabilityWithdrawSubmissions)}
	}

	now := m.now().UTC()
	justification := forceWithdrawPrefix + comment
	sanction := &entity.Sanction{
		ID:             uuid.New().String(),
		Type:           workflow.SanctionRetraction,
		RegistrationID: reg.ID,
		InitiatorID:    actorID,
		ApprovalStage:  workflow.StateInProgress,
		Justification:  justification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var fires []*workflow.Fire
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := m.sanctions.Create(txCtx, sanction); err != nil {
			return fmt.Errorf("create retraction: %w", err)
		}
		reg.ActiveSanctionID = sanction.ID
		submit, err := m.fire(txCtx, sanction, reg, workflow.TriggerSubmit, FireInput{
			ActorID: actorID, Comment: justification, Auto: true,
			Extra: map[string]any{"forced": true},
		})
		if err != nil {
			return err
		}
		// Skip the admin approval round entirely
		accept, err := m.fire(txCtx, sanction, reg, workflow.TriggerAccept, FireInput{
			ActorID: actorID, Comment: justification, Auto: true,
			Extra: map[string]any{"forced": true},
		})
		if err != nil {
			return err
		}
		fires = append(fires, submit, accept)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range fires {
		m.finish(ctx, f, sanction, reg)
	}
	return sanction, nil
}

// SweepApprovalWindows finalizes sanctions whose admin approval deadline
// has passed without a rejection: silence counts as consent.
func (m *SanctionsMachine) SweepApprovalWindows(ctx context.Context) error {
	now := m.now().UTC()
	pending, err := m.sanctions.ListPendingApproval(ctx, now)
	if err != nil {
		return fmt.Errorf("list pending sanctions: %w", err)
	}
	for _, s := range pending {
		if _, err := m.run(ctx, s.ID, workflow.TriggerApprove, FireInput{
			ActorID: entity.SystemUserID, Auto: true,
		}); err != nil {
			m.logger.Error("approval window sweep failed", "sanction_id", s.ID, "error", err)
		}
	}
	return nil
}

// SweepElapsedEmbargoes completes approved embargoes whose end date has
// arrived, making the registration public.
func (m *SanctionsMachine) SweepElapsedEmbargoes(ctx context.Context) error {
	now := m.now().UTC()
	elapsed, err := m.sanctions.ListElapsedEmbargoes(ctx, now)
	if err != nil {
		return fmt.Errorf("list elapsed embargoes: %w", err)
	}
	for _, s := range elapsed {
		if _, err := m.run(ctx, s.ID, workflow.TriggerAccept, FireInput{
			ActorID: entity.SystemUserID, Auto: true,
		}); err != nil {
			m.logger.Error("embargo sweep failed", "sanction_id", s.ID, "error", err)
		}
	}
	return nil
}

func (m *SanctionsMachine) run(ctx context.Context, sanctionID string, trigger workflow.Trigger, in FireInput) (*entity.Sanction, error) {
	sanction, reg, err := m.load(ctx, sanctionID)
	if err != nil {
		return nil, err
	}
	var f *workflow.Fire
	err = m.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		f, err = m.fire(txCtx, sanction, reg, trigger, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.finish(ctx, f, sanction, reg)
	return sanction, nil
}

func (m *SanctionsMachine) load(ctx context.Context, sanctionID string) (*entity.Sanction, *entity.Registration, error) {
	sanction, err := m.sanctions.GetByID(ctx, sanctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sanction: %w", err)
	}
	reg, err := m.registrations.GetByID(ctx, sanction.RegistrationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load registration: %w", err)
	}
	return sanction, reg, nil
}

// fire runs one engine fire within the caller's transaction scope
func (m *SanctionsMachine) fire(ctx context.Context, sanction *entity.Sanction, reg *entity.Registration, trigger workflow.Trigger, in FireInput) (*workflow.Fire, error) {
	provider, err := m.providers.GetByID(ctx, reg.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	hooks := &sanctionHooks{machine: m, sanction: sanction, registration: reg, provider: provider}
	engine := workflow.NewMachine[workflow.ApprovalHooks](
		workflow.FamilyApproval, workflow.ApprovalTransitions(), hooks)

	f := in.fire(sanction, trigger)
	if err := engine.Fire(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// finish publishes the committed fire's effects plus a moderation state
// change event when the derivation moved the registration.
func (m *SanctionsMachine) finish(ctx context.Context, f *workflow.Fire, sanction *entity.Sanction, reg *entity.Registration) {
	drainEffects(ctx, m.events, f, sanction.TargetRef())
	if change, ok := f.Extra["state_change"].(*StateChange); ok && m.events != nil {
		m.events.DispatchAsync(ctx, event.NewEvent(
			event.TypeModerationChanged,
			string(entity.TargetRegistration), reg.ID, reg.ProviderID,
			map[string]any{
				"from":        change.From.String(),
				"to":          change.To.String(),
				"sanction_id": sanction.ID,
			}))
	}
}

// sanctionHooks implements workflow.ApprovalHooks for one fire
type sanctionHooks struct {
	machine      *SanctionsMachine
	sanction     *entity.Sanction
	registration *entity.Registration
	provider     *entity.Provider
}

func (h *sanctionHooks) IsModerated(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.provider.IsModerated(), nil
}

func (h *sanctionHooks) Revisable(ctx context.Context, f *workflow.Fire) (bool, error) {
	return h.sanction.Revisable, nil
}

func (h *sanctionHooks) CompletionDue(ctx context.Context, f *workflow.Fire) (bool, error) {
	if h.sanction.Type != workflow.SanctionEmbargo {
		return false, nil
	}
	return h.sanction.EmbargoElapsed(h.machine.now().UTC()), nil
}

func (h *sanctionHooks) ValidateSubmit(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if !h.registration.HasAdmin(f.ActorID) {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "registration admin"}
	}
	return nil
}

func (h *sanctionHooks) ValidateAccept(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	// Non-auto accept only exists for moderators deciding the pending
	// moderation stage; the admin stage advances via approval tokens.
	if f.From != workflow.StatePendingModeration {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "system acceptance"}
	}
	return h.requireCapability(ctx, f.ActorID, entity.CapabilityAcceptSubmissions)
}

func (h *sanctionHooks) ValidateReject(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	if f.From == workflow.StatePendingModeration {
		return h.requireCapability(ctx, f.ActorID, entity.CapabilityRejectSubmissions)
	}
	// Admin-stage rejection: the actor must hold an approval slot (tokens
	// were already checked by the caller).
	if h.sanction.ApprovalFor(f.ActorID) == nil {
		return &workflow.PermissionsError{ActorID: f.ActorID, Capability: "sanction approval slot"}
	}
	return nil
}

func (h *sanctionHooks) requireCapability(ctx context.Context, actorID string, cap entity.Capability) error {
	allowed, err := h.machine.perms.HasProviderCapability(ctx, actorID, cap, h.provider.ID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: actorID, Capability: string(cap)}
	}
	return nil
}

// OnSubmit opens the admin approval round: one slot with fresh approve and
// reject tokens per admin contributor, and a deadline after which silence
// counts as consent. A forced retraction gets no slots; it is accepted in
// the same transaction.
func (h *sanctionHooks) OnSubmit(ctx context.Context, f *workflow.Fire) error {
	now := stamp(f, h.machine.now)
	h.sanction.InitiationDate = now
	h.sanction.EndDate = now.Add(entity.DefaultApprovalWindow)
	if f.Auto {
		return nil
	}
	for _, adminID := range h.registration.AdminContributorIDs {
		approveToken, err := h.machine.tokens.TokenForUser(adminID, h.sanction.ID, port.TokenApprove)
		if err != nil {
			return fmt.Errorf("issue approval token: %w", err)
		}
		rejectToken, err := h.machine.tokens.TokenForUser(adminID, h.sanction.ID, port.TokenReject)
		if err != nil {
			return fmt.Errorf("issue rejection token: %w", err)
		}
		h.sanction.Approvals = append(h.sanction.Approvals, &entity.Approval{
			UserID:         adminID,
			ApprovalToken:  approveToken,
			RejectionToken: rejectToken,
		})
	}
	return nil
}

// OnComplete applies the sanction's terminal effect to the registration
func (h *sanctionHooks) OnComplete(ctx context.Context, f *workflow.Fire) error {
	now := stamp(f, h.machine.now)
	switch h.sanction.Type {
	case workflow.SanctionRegistrationApproval:
		h.registration.IsPublic = true
	case workflow.SanctionEmbargo:
		if f.To == workflow.StateCompleted {
			// Embargo ran its course: lift it and go public
			h.registration.Embargoed = false
			h.registration.IsPublic = true
		} else {
			h.registration.Embargoed = true
			h.registration.IsPublic = false
		}
	case workflow.SanctionRetraction:
		// Withdrawn registrations stay visible as tombstones
		h.registration.DateWithdrawn = &now
		h.registration.IsPublic = true
		h.registration.Embargoed = false
	case workflow.SanctionEmbargoTermination:
		h.registration.Embargoed = false
		h.registration.IsPublic = true
	}
	return nil
}

func (h *sanctionHooks) OnReject(ctx context.Context, f *workflow.Fire) error {
	switch h.sanction.Type {
	case workflow.SanctionRegistrationApproval:
		h.registration.IsPublic = false
	case workflow.SanctionEmbargo:
		h.registration.Embargoed = false
	}
	h.registration.ActiveSanctionID = ""
	return nil
}

func (h *sanctionHooks) SaveAction(ctx context.Context, f *workflow.Fire) error {
	stamp(f, h.machine.now)
	if err := h.machine.actions.Create(ctx, entity.NewAction(h.sanction.TargetRef(), f)); err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

// SaveTransition persists the sanction and re-derives the registration
// tree's moderation state inside the same transaction.
func (h *sanctionHooks) SaveTransition(ctx context.Context, f *workflow.Fire) error {
	now := stamp(f, h.machine.now)
	h.sanction.UpdatedAt = now
	if err := h.machine.sanctions.Update(ctx, h.sanction); err != nil {
		return fmt.Errorf("save sanction: %w", err)
	}

	change, err := h.machine.moderation.Apply(
		ctx, h.registration, h.sanction, f.ActorID, f.Comment, f.Auto, f.ExtraBool("forced"), now)
	if err != nil {
		return err
	}
	if change != nil {
		if f.Extra == nil {
			f.Extra = map[string]any{}
		}
		f.Extra["state_change"] = change
		f.AddEffect(workflow.Effect{
			Kind:       workflow.EffectReindex,
			TargetID:   h.registration.ID,
			TargetKind: string(entity.TargetRegistration),
			ProviderID: h.provider.ID,
		})
	}
	return nil
}

func (h *sanctionHooks) NotifySubmit(ctx context.Context, f *workflow.Fire) error {
	if f.Auto {
		return nil
	}
	h.notify(f, "sanction_approval_requested", h.registration.AdminContributorIDs)
	return nil
}

func (h *sanctionHooks) NotifyModerationQueue(ctx context.Context, f *workflow.Fire) error {
	// Moderator recipients are resolved by the notification handler from
	// the provider id.
	h.notify(f, "sanction_pending_moderation", nil)
	return nil
}

func (h *sanctionHooks) NotifyAcceptReject(ctx context.Context, f *workflow.Fire) error {
	h.notify(f, "sanction_decided", h.registration.AdminContributorIDs)
	return nil
}

func (h *sanctionHooks) notify(f *workflow.Fire, template string, recipients []string) {
	f.AddEffect(workflow.Effect{
		Kind:       workflow.EffectNotify,
		Template:   template,
		TargetID:   h.sanction.ID,
		ProviderID: h.provider.ID,
		Recipients: recipients,
		Context: map[string]any{
			"registration_id": h.registration.ID,
			"sanction_type":   h.sanction.Type.String(),
			"trigger":         f.Trigger.String(),
			"to_state":        f.To.String(),
		},
	})
}
