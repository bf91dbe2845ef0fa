package machines

import (
	"context"
	"fmt"
	"time"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// RegistrationModerationService keeps a registration tree's visible
// moderation state in sync with its active sanction. Registrations have no
// transition table of their own: the state is derived from the sanction's
// approval stage and written to the root and every descendant at the same
// instant.
type RegistrationModerationService struct {
	registrations port.RegistrationRepository
	actions       port.ActionRepository
	logger        Logger
}

// NewRegistrationModerationService creates the derivation service
func NewRegistrationModerationService(
	registrations port.RegistrationRepository,
	actions port.ActionRepository,
	logger Logger,
) *RegistrationModerationService {
	return &RegistrationModerationService{
		registrations: registrations,
		actions:       actions,
		logger:        logger,
	}
}

// StateChange describes one applied derivation
type StateChange struct {
	From workflow.State
	To   workflow.State
}

// Apply derives the registration's moderation state from the sanction's
// approval stage and cascades it. Must run inside the sanction fire's
// transaction. Returns nil when the derivation lands on the current state.
//
// A rejected retraction derives to no state at all; the registration falls
// back to the visible state it held before the withdrawal was requested,
// reconstructed from its embargo flag.
func (s *RegistrationModerationService) Apply(ctx context.Context, reg *entity.Registration, sanction *entity.Sanction, actorID, comment string, auto, forced bool, at time.Time) (*StateChange, error) {
	from := reg.ModerationState
	to := workflow.DeriveModerationState(sanction.Type, sanction.MachineState())
	if to == workflow.StateUndefined {
		if reg.Embargoed {
			to = workflow.StateEmbargo
		} else {
			to = workflow.StateAccepted
		}
	}
	if to == from {
		return nil, nil
	}

	if trigger, ok := workflow.TriggerFromModerationTransition(from, to, forced); ok {
		action := entity.NewAction(reg.TargetRef(), &workflow.Fire{
			Trigger:    trigger,
			ActorID:    actorID,
			Comment:    comment,
			Auto:       auto,
			From:       from,
			To:         to,
			OccurredAt: at,
		})
		if err := s.actions.Create(ctx, action); err != nil {
			return nil, fmt.Errorf("save registration action: %w", err)
		}
	} else {
		s.logger.Info("moderation state change has no named trigger",
			"registration_id", reg.ID, "from", from.String(), "to", to.String())
	}

	reg.ModerationState = to
	reg.DateLastTransitioned = &at
	reg.UpdatedAt = at
	if err := s.registrations.Update(ctx, reg); err != nil {
		return nil, fmt.Errorf("update registration: %w", err)
	}

	// The whole tree shares the root's state; components are not moderated
	// individually and get no audit action of their own.
	descendants, err := s.registrations.ListDescendants(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("list descendants: %w", err)
	}
	for _, d := range descendants {
		if err := s.registrations.UpdateModerationState(ctx, d.ID, to, at); err != nil {
			return nil, fmt.Errorf("cascade to %s: %w", d.ID, err)
		}
	}

	return &StateChange{From: from, To: to}, nil
}
