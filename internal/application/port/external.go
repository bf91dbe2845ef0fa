package port

import (
	"context"

	"github.com/openscience/moderation/internal/domain/entity"
)

// PermissionOracle answers authorization questions for guard hooks. The
// surrounding platform owns role assignment; the core only asks.
type PermissionOracle interface {
	// HasProviderCapability reports whether the user holds a moderator
	// capability on the provider (a provider admin holds all of them).
	HasProviderCapability(ctx context.Context, userID string, cap entity.Capability, providerID string) (bool, error)
}

// Notifier delivers a notification template to recipients. Dispatch is
// fire-and-forget from the core's point of view: failures are logged by
// the implementation and never propagate into a transition.
type Notifier interface {
	Notify(ctx context.Context, template string, recipients []string, context map[string]any) error
}

// SearchIndexer reindexes an entity after a visibility-changing transition
// (publish, withdraw). Best effort: errors are logged, never raised.
type SearchIndexer interface {
	Reindex(ctx context.Context, kind entity.TargetKind, id string) error
}

// TokenPurpose scopes a sanction token to one decision
type TokenPurpose string

const (
	TokenApprove TokenPurpose = "approve"
	TokenReject  TokenPurpose = "reject"
)

// TokenService issues and validates the per-user tokens that gate
// admin-level sanction decisions invoked via emailed links.
type TokenService interface {
	TokenForUser(userID, sanctionID string, purpose TokenPurpose) (string, error)
	ValidateToken(token, userID, sanctionID string, purpose TokenPurpose) error
}
