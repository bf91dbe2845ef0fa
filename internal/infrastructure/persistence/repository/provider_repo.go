package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/pkg/database"
)

// ProviderRepository implements port.ProviderRepository
type ProviderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *database.DB, logger *zap.Logger) port.ProviderRepository {
	return &ProviderRepository{db: db.DB, logger: logger}
}

// Create persists a new provider
func (r *ProviderRepository) Create(ctx context.Context, p *entity.Provider) error {
	query := `
		INSERT INTO providers (
			id, name, reviews_workflow, resubmission_allowed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		p.ID, p.Name, string(p.ReviewsWorkflow), p.ResubmissionAllowed,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create provider", zap.Error(err))
		return fmt.Errorf("failed to create provider: %w", err)
	}
	return nil
}

// GetByID retrieves one provider
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*entity.Provider, error) {
	query := `
		SELECT id, name, reviews_workflow, resubmission_allowed, created_at, updated_at
		FROM providers WHERE id = ?
	`
	var p entity.Provider
	var policy string
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &policy, &p.ResubmissionAllowed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	p.ReviewsWorkflow = entity.ModerationPolicy(policy)
	return &p, nil
}

// Update persists provider changes
func (r *ProviderRepository) Update(ctx context.Context, p *entity.Provider) error {
	query := `
		UPDATE providers SET
			name = ?, reviews_workflow = ?, resubmission_allowed = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		p.Name, string(p.ReviewsWorkflow), p.ResubmissionAllowed, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update provider", zap.Error(err))
		return fmt.Errorf("failed to update provider: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("provider %s not found", p.ID)
	}
	return nil
}

// Verify interface compliance
var _ port.ProviderRepository = (*ProviderRepository)(nil)

// NodeRepository implements port.NodeRepository
type NodeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *database.DB, logger *zap.Logger) port.NodeRepository {
	return &NodeRepository{db: db.DB, logger: logger}
}

// GetByID retrieves one node
func (r *NodeRepository) GetByID(ctx context.Context, id string) (*entity.Node, error) {
	query := `
		SELECT id, title, creator_id, is_public, contributor_ids, admin_ids,
			created_at, updated_at
		FROM nodes WHERE id = ?
	`
	var n entity.Node
	var contributors, admins string
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.Title, &n.CreatorID, &n.IsPublic, &contributors, &admins,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if err := json.Unmarshal([]byte(contributors), &n.ContributorIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contributors: %w", err)
	}
	if err := json.Unmarshal([]byte(admins), &n.AdminIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admins: %w", err)
	}
	return &n, nil
}

// Update persists node changes
func (r *NodeRepository) Update(ctx context.Context, n *entity.Node) error {
	contributors, err := marshalJSON(n.ContributorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal contributors: %w", err)
	}
	admins, err := marshalJSON(n.AdminIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	query := `
		UPDATE nodes SET
			title = ?, is_public = ?, contributor_ids = ?, admin_ids = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		n.Title, n.IsPublic, contributors, admins, n.UpdatedAt,
		n.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update node", zap.Error(err))
		return fmt.Errorf("failed to update node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("node %s not found", n.ID)
	}
	return nil
}

// Verify interface compliance
var _ port.NodeRepository = (*NodeRepository)(nil)
