package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
	"github.com/openscience/moderation/pkg/database"
)

// SanctionRepository implements port.SanctionRepository. Approval slots
// are stored as a JSON column: they are only ever read and written as a
// whole together with their sanction.
type SanctionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSanctionRepository creates a new sanction repository
func NewSanctionRepository(db *database.DB, logger *zap.Logger) port.SanctionRepository {
	return &SanctionRepository{db: db.DB, logger: logger}
}

// Create persists a new sanction
func (r *SanctionRepository) Create(ctx context.Context, s *entity.Sanction) error {
	approvals, err := marshalJSON(s.Approvals)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}

	query := `
		INSERT INTO sanctions (
			id, type, registration_id, initiator_id, approval_stage,
			initiation_date, end_date, embargo_end_date, justification,
			revisable, approvals, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		s.ID, s.Type.String(), s.RegistrationID, s.InitiatorID, s.ApprovalStage.String(),
		s.InitiationDate, s.EndDate, nullTime(s.EmbargoEndDate), s.Justification,
		s.Revisable, approvals, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create sanction", zap.Error(err))
		return fmt.Errorf("failed to create sanction: %w", err)
	}
	return nil
}

// GetByID retrieves one sanction
func (r *SanctionRepository) GetByID(ctx context.Context, id string) (*entity.Sanction, error) {
	query := sanctionSelect + ` WHERE id = ?`
	s, err := scanSanction(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sanction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sanction: %w", err)
	}
	return s, nil
}

// Update persists sanction changes
func (r *SanctionRepository) Update(ctx context.Context, s *entity.Sanction) error {
	approvals, err := marshalJSON(s.Approvals)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}

	query := `
		UPDATE sanctions SET
			approval_stage = ?, initiation_date = ?, end_date = ?,
			embargo_end_date = ?, justification = ?, revisable = ?,
			approvals = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		s.ApprovalStage.String(), s.InitiationDate, s.EndDate,
		nullTime(s.EmbargoEndDate), s.Justification, s.Revisable,
		approvals, s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update sanction", zap.Error(err))
		return fmt.Errorf("failed to update sanction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sanction %s not found", s.ID)
	}
	return nil
}

// ListPendingApproval returns unapproved sanctions whose approval window
// closes before the cutoff
func (r *SanctionRepository) ListPendingApproval(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error) {
	query := sanctionSelect + `
		WHERE approval_stage = ? AND end_date <= ?
		ORDER BY end_date ASC
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, workflow.StateUnapproved.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sanctions: %w", err)
	}
	defer rows.Close()
	return collectSanctions(rows)
}

// ListElapsedEmbargoes returns approved embargoes past their end date
func (r *SanctionRepository) ListElapsedEmbargoes(ctx context.Context, cutoff time.Time) ([]*entity.Sanction, error) {
	query := sanctionSelect + `
		WHERE type = ? AND approval_stage = ?
			AND embargo_end_date IS NOT NULL AND embargo_end_date <= ?
		ORDER BY embargo_end_date ASC
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query,
		workflow.SanctionEmbargo.String(), workflow.StateApproved.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list elapsed embargoes: %w", err)
	}
	defer rows.Close()
	return collectSanctions(rows)
}

const sanctionSelect = `
	SELECT id, type, registration_id, initiator_id, approval_stage,
		initiation_date, end_date, embargo_end_date, justification,
		revisable, approvals, created_at, updated_at
	FROM sanctions
`

func scanSanction(row rowScanner) (*entity.Sanction, error) {
	var s entity.Sanction
	var sanctionType, stage, approvals string
	var embargoEnd sql.NullTime
	err := row.Scan(
		&s.ID, &sanctionType, &s.RegistrationID, &s.InitiatorID, &stage,
		&s.InitiationDate, &s.EndDate, &embargoEnd, &s.Justification,
		&s.Revisable, &approvals, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(approvals), &s.Approvals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approvals: %w", err)
	}
	s.Type = workflow.SanctionType(sanctionType)
	s.ApprovalStage = workflowState(stage)
	s.EmbargoEndDate = scanTime(embargoEnd)
	return &s, nil
}

func collectSanctions(rows *sql.Rows) ([]*entity.Sanction, error) {
	var sanctions []*entity.Sanction
	for rows.Next() {
		s, err := scanSanction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sanction: %w", err)
		}
		sanctions = append(sanctions, s)
	}
	return sanctions, rows.Err()
}

// Verify interface compliance
var _ port.SanctionRepository = (*SanctionRepository)(nil)
