package port

import (
	"context"
	"time"

	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
)

// PreprintRepository defines persistence operations for Preprint
type PreprintRepository interface {
	Create(ctx context.Context, p *entity.Preprint) error
	GetByID(ctx context.Context, id string) (*entity.Preprint, error)
	Update(ctx context.Context, p *entity.Preprint) error
	ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Preprint, error)
}

// RegistrationRepository defines persistence operations for Registration
type RegistrationRepository interface {
	Create(ctx context.Context, r *entity.Registration) error
	GetByID(ctx context.Context, id string) (*entity.Registration, error)
	Update(ctx context.Context, r *entity.Registration) error
	// ListDescendants returns every registration below the given root in
	// the project hierarchy (children and grandchildren), in no particular
	// order.
	ListDescendants(ctx context.Context, rootID string) ([]*entity.Registration, error)
	// UpdateModerationState writes the derived state and transition stamp
	// for one registration.
	UpdateModerationState(ctx context.Context, id string, state workflow.State, at time.Time) error
	ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Registration, error)
}

// SanctionRepository defines persistence operations for Sanction
type SanctionRepository interface {
	Create(ctx context.Context, s *entity.Sanction) error
	GetByID(ctx context.Context, id string) (*entity.Sanction, error)
	Update(ctx context.Context, s *entity.Sanction) error
	// ListPendingApproval returns unapproved sanctions whose approval
	// window ends before the cutoff (the sweep finalizes them).
	ListPendingApproval(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error)
	// ListElapsedEmbargoes returns approved embargoes whose embargo end
	// date is before the cutoff.
	ListElapsedEmbargoes(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error)
}

// NodeRequestRepository defines persistence operations for NodeRequest
type NodeRequestRepository interface {
	Create(ctx context.Context, r *entity.NodeRequest) error
	GetByID(ctx context.Context, id string) (*entity.NodeRequest, error)
	Update(ctx context.Context, r *entity.NodeRequest) error
	ListByNode(ctx context.Context, nodeID string) ([]*entity.NodeRequest, error)
}

// PreprintRequestRepository defines persistence operations for PreprintRequest
type PreprintRequestRepository interface {
	Create(ctx context.Context, r *entity.PreprintRequest) error
	GetByID(ctx context.Context, id string) (*entity.PreprintRequest, error)
	Update(ctx context.Context, r *entity.PreprintRequest) error
	ListByPreprint(ctx context.Context, preprintID string) ([]*entity.PreprintRequest, error)
}

// CollectionSubmissionRepository defines persistence operations for
// CollectionSubmission
type CollectionSubmissionRepository interface {
	Create(ctx context.Context, s *entity.CollectionSubmission) error
	GetByID(ctx context.Context, id string) (*entity.CollectionSubmission, error)
	Update(ctx context.Context, s *entity.CollectionSubmission) error
	ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.CollectionSubmission, error)
}

// ActionRepository persists the immutable audit trail
type ActionRepository interface {
	Create(ctx context.Context, a *entity.Action) error
	GetByID(ctx context.Context, id string) (*entity.Action, error)
	ListByTarget(ctx context.Context, target entity.TargetRef) ([]*entity.Action, error)
	ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Action, error)
}

// ProviderRepository defines persistence operations for Provider
type ProviderRepository interface {
	Create(ctx context.Context, p *entity.Provider) error
	GetByID(ctx context.Context, id string) (*entity.Provider, error)
	Update(ctx context.Context, p *entity.Provider) error
}

// NodeRepository defines persistence operations for Node
type NodeRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Node, error)
	Update(ctx context.Context, n *entity.Node) error
}

// TransactionManager handles database transactions. A trigger execution
// (state mutation plus audit action) always runs inside one transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
