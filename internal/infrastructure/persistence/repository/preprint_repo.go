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

// PreprintRepository implements port.PreprintRepository
type PreprintRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPreprintRepository creates a new preprint repository
func NewPreprintRepository(db *database.DB, logger *zap.Logger) port.PreprintRepository {
	return &PreprintRepository{db: db.DB, logger: logger}
}

// Create persists a new preprint
func (r *PreprintRepository) Create(ctx context.Context, p *entity.Preprint) error {
	subjects, err := marshalJSON(p.SubjectIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	query := `
		INSERT INTO preprints (
			id, title, creator_id, provider_id, primary_file_id, subject_ids,
			reviews_state, date_last_transitioned, is_published, date_published,
			ever_public, date_withdrawn, withdrawal_justification,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		p.ID, p.Title, p.CreatorID, p.ProviderID, p.PrimaryFileID, subjects,
		p.ReviewsState.String(), nullTime(p.DateLastTransitioned),
		p.IsPublished, nullTime(p.DatePublished),
		p.EverPublic, nullTime(p.DateWithdrawn), p.WithdrawalJustification,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create preprint", zap.Error(err))
		return fmt.Errorf("failed to create preprint: %w", err)
	}
	return nil
}

// GetByID retrieves one preprint
func (r *PreprintRepository) GetByID(ctx context.Context, id string) (*entity.Preprint, error) {
	query := preprintSelect + ` WHERE id = ?`
	p, err := scanPreprint(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("preprint %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preprint: %w", err)
	}
	return p, nil
}

// Update persists preprint changes
func (r *PreprintRepository) Update(ctx context.Context, p *entity.Preprint) error {
	subjects, err := marshalJSON(p.SubjectIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	query := `
		UPDATE preprints SET
			title = ?, primary_file_id = ?, subject_ids = ?,
			reviews_state = ?, date_last_transitioned = ?,
			is_published = ?, date_published = ?, ever_public = ?,
			date_withdrawn = ?, withdrawal_justification = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		p.Title, p.PrimaryFileID, subjects,
		p.ReviewsState.String(), nullTime(p.DateLastTransitioned),
		p.IsPublished, nullTime(p.DatePublished), p.EverPublic,
		nullTime(p.DateWithdrawn), p.WithdrawalJustification, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update preprint", zap.Error(err))
		return fmt.Errorf("failed to update preprint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("preprint %s not found", p.ID)
	}
	return nil
}

// ListByProviderAndState pages a provider's preprints in one reviews state
func (r *PreprintRepository) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Preprint, error) {
	query := preprintSelect + `
		WHERE provider_id = ? AND reviews_state = ?
		ORDER BY date_last_transitioned ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, providerID, state.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list preprints: %w", err)
	}
	defer rows.Close()

	var preprints []*entity.Preprint
	for rows.Next() {
		p, err := scanPreprint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preprint: %w", err)
		}
		preprints = append(preprints, p)
	}
	return preprints, rows.Err()
}

const preprintSelect = `
	SELECT id, title, creator_id, provider_id, primary_file_id, subject_ids,
		reviews_state, date_last_transitioned, is_published, date_published,
		ever_public, date_withdrawn, withdrawal_justification,
		created_at, updated_at
	FROM preprints
`

func scanPreprint(row rowScanner) (*entity.Preprint, error) {
	var p entity.Preprint
	var subjects, state string
	var lastTransitioned, published, withdrawn sql.NullTime
	err := row.Scan(
		&p.ID, &p.Title, &p.CreatorID, &p.ProviderID, &p.PrimaryFileID, &subjects,
		&state, &lastTransitioned, &p.IsPublished, &published,
		&p.EverPublic, &withdrawn, &p.WithdrawalJustification,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(subjects), &p.SubjectIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	p.ReviewsState = workflowState(state)
	p.DateLastTransitioned = scanTime(lastTransitioned)
	p.DatePublished = scanTime(published)
	p.DateWithdrawn = scanTime(withdrawn)
	return &p, nil
}

// Verify interface compliance
var _ port.PreprintRepository = (*PreprintRepository)(nil)
