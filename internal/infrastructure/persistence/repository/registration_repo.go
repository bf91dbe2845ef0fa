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

// RegistrationRepository implements port.RegistrationRepository
type RegistrationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(db *database.DB, logger *zap.Logger) port.RegistrationRepository {
	return &RegistrationRepository{db: db.DB, logger: logger}
}

// Create persists a new registration
func (r *RegistrationRepository) Create(ctx context.Context, reg *entity.Registration) error {
	admins, err := marshalJSON(reg.AdminContributorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	query := `
		INSERT INTO registrations (
			id, title, creator_id, provider_id, parent_id,
			moderation_state, active_sanction_id, date_last_transitioned,
			is_public, embargoed, date_withdrawn, admin_contributor_ids,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		reg.ID, reg.Title, reg.CreatorID, reg.ProviderID, reg.ParentID,
		reg.ModerationState.String(), reg.ActiveSanctionID, nullTime(reg.DateLastTransitioned),
		reg.IsPublic, reg.Embargoed, nullTime(reg.DateWithdrawn), admins,
		reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create registration", zap.Error(err))
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

// GetByID retrieves one registration
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*entity.Registration, error) {
	query := registrationSelect + ` WHERE id = ?`
	reg, err := scanRegistration(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("registration %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

// Update persists registration changes
func (r *RegistrationRepository) Update(ctx context.Context, reg *entity.Registration) error {
	admins, err := marshalJSON(reg.AdminContributorIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal admins: %w", err)
	}

	query := `
		UPDATE registrations SET
			title = ?, moderation_state = ?, active_sanction_id = ?,
			date_last_transitioned = ?, is_public = ?, embargoed = ?,
			date_withdrawn = ?, admin_contributor_ids = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		reg.Title, reg.ModerationState.String(), reg.ActiveSanctionID,
		nullTime(reg.DateLastTransitioned), reg.IsPublic, reg.Embargoed,
		nullTime(reg.DateWithdrawn), admins, reg.UpdatedAt,
		reg.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update registration", zap.Error(err))
		return fmt.Errorf("failed to update registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("registration %s not found", reg.ID)
	}
	return nil
}

// ListDescendants walks the parent links down from the root. A recursive
// CTE keeps the tree walk in one round trip regardless of depth.
func (r *RegistrationRepository) ListDescendants(ctx context.Context, rootID string) ([]*entity.Registration, error) {
	query := `
		WITH RECURSIVE tree(id) AS (
			SELECT id FROM registrations WHERE parent_id = ?
			UNION ALL
			SELECT reg.id FROM registrations reg
				JOIN tree ON reg.parent_id = tree.id
		)
	` + registrationSelect + ` WHERE id IN (SELECT id FROM tree)`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

// UpdateModerationState writes just the derived state and transition stamp
func (r *RegistrationRepository) UpdateModerationState(ctx context.Context, id string, state workflow.State, at time.Time) error {
	query := `
		UPDATE registrations
		SET moderation_state = ?, date_last_transitioned = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, state.String(), at, at, id)
	if err != nil {
		r.logger.Error("Failed to update moderation state", zap.Error(err))
		return fmt.Errorf("failed to update moderation state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("registration %s not found", id)
	}
	return nil
}

// ListByProviderAndState pages a provider's registrations in one state
func (r *RegistrationRepository) ListByProviderAndState(ctx context.Context, providerID string, state workflow.State, limit, offset int) ([]*entity.Registration, error) {
	query := registrationSelect + `
		WHERE provider_id = ? AND moderation_state = ? AND parent_id = ''
		ORDER BY date_last_transitioned ASC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, providerID, state.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

const registrationSelect = `
	SELECT id, title, creator_id, provider_id, parent_id,
		moderation_state, active_sanction_id, date_last_transitioned,
		is_public, embargoed, date_withdrawn, admin_contributor_ids,
		created_at, updated_at
	FROM registrations
`

func scanRegistration(row rowScanner) (*entity.Registration, error) {
	var reg entity.Registration
	var state, admins string
	var lastTransitioned, withdrawn sql.NullTime
	err := row.Scan(
		&reg.ID, &reg.Title, &reg.CreatorID, &reg.ProviderID, &reg.ParentID,
		&state, &reg.ActiveSanctionID, &lastTransitioned,
		&reg.IsPublic, &reg.Embargoed, &withdrawn, &admins,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(admins), &reg.AdminContributorIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal admins: %w", err)
	}
	reg.ModerationState = workflowState(state)
	reg.DateLastTransitioned = scanTime(lastTransitioned)
	reg.DateWithdrawn = scanTime(withdrawn)
	return &reg, nil
}

func collectRegistrations(rows *sql.Rows) ([]*entity.Registration, error) {
	var regs []*entity.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Verify interface compliance
var _ port.RegistrationRepository = (*RegistrationRepository)(nil)
