package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
	"github.com/openscience/moderation/pkg/database"
)

// CollectionSubmissionRepository implements port.CollectionSubmissionRepository
type CollectionSubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCollectionSubmissionRepository creates a new collection submission repository
func NewCollectionSubmissionRepository(db *database.DB, logger *zap.Logger) port.CollectionSubmissionRepository {
	return &CollectionSubmissionRepository{db: db.DB, logger: logger}
}

// Create persists a new collection submission
func (r *CollectionSubmissionRepository) Create(ctx context.Context, s *entity.CollectionSubmission) error {
	contributors, err := marshalJSON(s.NodeContributorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal contributors: %w", err)
	}
	admins, err := marshalJSON(s.NodeAdminIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	query := `
		INSERT INTO collection_submissions (
			id, collection_id, node_id, provider_id, creator_id, comment,
			machine_state, date_last_transitioned,
			node_contributor_ids, node_admin_ids, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		s.ID, s.CollectionID, s.NodeID, s.ProviderID, s.CreatorID, s.Comment,
		s.State.String(), nullTime(s.DateLastTransitioned),
		contributors, admins, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create collection submission", zap.Error(err))
		return fmt.Errorf("failed to create collection submission: %w", err)
	}
	return nil
}

// GetByID retrieves one collection submission
func (r *CollectionSubmissionRepository) GetByID(ctx context.Context, id string) (*entity.CollectionSubmission, error) {
	query := collectionSubmissionSelect + ` WHERE id = ?`
	s, err := scanCollectionSubmission(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("collection submission %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection submission: %w", err)
	}
	return s, nil
}

// Update persists collection submission changes
func (r *CollectionSubmissionRepository) Update(ctx context.Context, s *entity.CollectionSubmission) error {
	contributors, err := marshalJSON(s.NodeContributorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal contributors: %w", err)
	}
	admins, err := marshalJSON(s.NodeAdminIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	query := `
		UPDATE collection_submissions SET
			comment = ?, machine_state = ?, date_last_transitioned = ?,
			node_contributor_ids = ?, node_admin_ids = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		s.Comment, s.State.String(), nullTime(s.DateLastTransitioned),
		contributors, admins, s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update collection submission", zap.Error(err))
		return fmt.Errorf("failed to update collection submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("collection submission %s not found", s.ID)
	}
	return nil
}

// ListByProviderAndState pages a provider's submissions in one state
func (r *CollectionSubmissionRepository) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.CollectionSubmission, error) {
	query := collectionSubmissionSelect + `
		WHERE provider_id = ? AND machine_state = ?
		ORDER BY date_last_transitioned ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, providerID, state.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*entity.CollectionSubmission
	for rows.Next() {
		s, err := scanCollectionSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

const collectionSubmissionSelect = `
	SELECT id, collection_id, node_id, provider_id, creator_id, comment,
		machine_state, date_last_transitioned,
		node_contributor_ids, node_admin_ids, created_at, updated_at
	FROM collection_submissions
`

func scanCollectionSubmission(row rowScanner) (*entity.CollectionSubmission, error) {
	var s entity.CollectionSubmission
	var state, contributors, admins string
	var lastTransitioned sql.NullTime
	err := row.Scan(
		&s.ID, &s.CollectionID, &s.NodeID, &s.ProviderID, &s.CreatorID, &s.Comment,
		&state, &lastTransitioned, &contributors, &admins,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contributors), &s.NodeContributorIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contributors: %w", err)
	}
	if err := json.Unmarshal([]byte(admins), &s.NodeAdminIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admins: %w", err)
	}
	s.State = workflowState(state)
	s.DateLastTransitioned = scanTime(lastTransitioned)
	return &s, nil
}

// Verify interface compliance
var _ port.CollectionSubmissionRepository = (*CollectionSubmissionRepository)(nil)
