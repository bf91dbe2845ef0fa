package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/pkg/database"
)

// ActionRepository implements port.ActionRepository. Actions are written
// once and never updated: there is deliberately no Update method.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *database.DB, logger *zap.Logger) port.ActionRepository {
	return &ActionRepository{db: db.DB, logger: logger}
}

// Create persists one audit record
func (r *ActionRepository) Create(ctx context.Context, a *entity.Action) error {
	query := `
		INSERT INTO actions (
			id, target_kind, target_id, trigger_name, from_state, to_state,
			creator_id, comment, auto, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		a.ID,
		string(a.Target.Kind),
		a.Target.ID,
		a.Trigger.String(),
		a.FromState.String(),
		a.ToState.String(),
		a.CreatorID,
		a.Comment,
		a.Auto,
		a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create action", zap.Error(err))
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

// GetByID retrieves one action
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*entity.Action, error) {
	query := actionSelect + ` WHERE id = ?`
	row := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("action %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

// ListByTarget returns a target's audit trail, oldest first
func (r *ActionRepository) ListByTarget(ctx context.Context, target entity.TargetRef) ([]*entity.Action, error) {
	query := actionSelect + ` WHERE target_kind = ? AND target_id = ? ORDER BY created_at ASC`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, string(target.Kind), target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()
	return collectActions(rows)
}

// ListByProvider returns recent actions across a provider's targets. The
// target tables each carry a provider_id; the audit table joins against
// them to avoid denormalizing the provider onto every row.
func (r *ActionRepository) ListByProvider(ctx context.Context, providerID string, since time.Time) ([]*entity.Action, error) {
	query := `
		SELECT a.id, a.target_kind, a.target_id, a.trigger_name, a.from_state,
			a.to_state, a.creator_id, a.comment, a.auto, a.created_at
		FROM actions a
		WHERE a.created_at >= ? AND a.target_id IN (
			SELECT id FROM preprints WHERE provider_id = ?
			UNION SELECT id FROM registrations WHERE provider_id = ?
			UNION SELECT id FROM collection_submissions WHERE provider_id = ?
			UNION SELECT s.id FROM sanctions s
				JOIN registrations reg ON reg.id = s.registration_id
				WHERE reg.provider_id = ?
		)
		ORDER BY a.created_at ASC
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		since, providerID, providerID, providerID, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider actions: %w", err)
	}
	defer rows.Close()
	return collectActions(rows)
}

const actionSelect = `
	SELECT id, target_kind, target_id, trigger_name, from_state, to_state,
		creator_id, comment, auto, created_at
	FROM actions
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*entity.Action, error) {
	var a entity.Action
	var kind, trigger, from, to string
	err := row.Scan(
		&a.ID, &kind, &a.Target.ID, &trigger, &from, &to,
		&a.CreatorID, &a.Comment, &a.Auto, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Target.Kind = entity.TargetKind(kind)
	a.Trigger = workflowTrigger(trigger)
	a.FromState = workflowState(from)
	a.ToState = workflowState(to)
	return &a, nil
}

func collectActions(rows *sql.Rows) ([]*entity.Action, error) {
	var actions []*entity.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
