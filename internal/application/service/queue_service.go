package service

import (
	"context"
	"fmt"
	"time"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefaultPageSize bounds unpaginated queue reads
const DefaultPageSize = 50

// QueueService serves the moderator-facing read side: per-provider queues
// of submissions awaiting a decision, plus audit trails. Moderators may
// only read queues on providers where they hold the view capability.
type QueueService struct {
	preprints     port.PreprintRepository
	registrations port.RegistrationRepository
	collections   port.CollectionSubmissionRepository
	actions       port.ActionRepository
	perms         port.PermissionOracle
	logger        Logger
}

// NewQueueService creates the queue service
func NewQueueService(
	preprints port.PreprintRepository,
	registrations port.RegistrationRepository,
	collections port.CollectionSubmissionRepository,
	actions port.ActionRepository,
	perms port.PermissionOracle,
	logger Logger,
) *QueueService {
	return &QueueService{
		preprints:     preprints,
		registrations: registrations,
		collections:   collections,
		actions:       actions,
		perms:         perms,
		logger:        logger,
	}
}

// Page bounds one queue read
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = DefaultPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (s *QueueService) requireView(ctx context.Context, actorID, providerID string) error {
	allowed, err := s.perms.HasProviderCapability(ctx, actorID, entity.CapabilityViewSubmissions, providerID)
	if err != nil {
		return fmt.Errorf("permission check: %w", err)
	}
	if !allowed {
		return &workflow.PermissionsError{ActorID: actorID, Capability: string(entity.CapabilityViewSubmissions)}
	}
	return nil
}

// PendingPreprints returns a provider's reviews queue
func (s *QueueService) PendingPreprints(ctx context.Context, actorID, providerID string, page Page) ([]*entity.Preprint, error) {
	if err := s.requireView(ctx, actorID, providerID); err != nil {
		return nil, err
	}
	page = page.normalize()
	return s.preprints.ListByProviderAndState(ctx, providerID, workflow.StatePending, page.Limit, page.Offset)
}

// RegistrationsInState returns a provider's root registrations in one
// moderation state. The moderator's queue states are PENDING,
// PENDING_WITHDRAW and PENDING_EMBARGO_TERMINATION.
func (s *QueueService) RegistrationsInState(ctx context.Context, actorID, providerID string, state workflow.State, page Page) ([]*entity.Registration, error) {
	if err := s.requireView(ctx, actorID, providerID); err != nil {
		return nil, err
	}
	if !workflow.FamilyRegistrationModeration.Contains(state) {
		return nil, workflow.NewValidationError("%q is not a registration moderation state", state.String())
	}
	page = page.normalize()
	return s.registrations.ListByProviderAndState(ctx, providerID, state, page.Limit, page.Offset)
}

// PendingCollectionSubmissions returns a provider's collection queue
func (s *QueueService) PendingCollectionSubmissions(ctx context.Context, actorID, providerID string, page Page) ([]*entity.CollectionSubmission, error) {
	if err := s.requireView(ctx, actorID, providerID); err != nil {
		return nil, err
	}
	page = page.normalize()
	return s.collections.ListByProviderAndState(ctx, providerID, workflow.StatePending, page.Limit, page.Offset)
}

// TargetHistory returns a target's full audit trail, oldest first
func (s *QueueService) TargetHistory(ctx context.Context, target entity.TargetRef) ([]*entity.Action, error) {
	return s.actions.ListByTarget(ctx, target)
}

// ProviderActivity returns a provider's moderation actions since a time
func (s *QueueService) ProviderActivity(ctx context.Context, actorID, providerID string, since time.Time) ([]*entity.Action, error) {
	if err := s.requireView(ctx, actorID, providerID); err != nil {
		return nil, err
	}
	return s.actions.ListByProvider(ctx, providerID, since)
}
