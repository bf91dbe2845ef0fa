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

// ModeratorRepository answers capability checks from the moderators table.
// It implements port.PermissionOracle.
type ModeratorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewModeratorRepository creates a new moderator repository
func NewModeratorRepository(db *database.DB, logger *zap.Logger) *ModeratorRepository {
	return &ModeratorRepository{db: db.DB, logger: logger}
}

// Grant persists a moderator grant, replacing any existing grant for the
// same user and provider.
func (r *ModeratorRepository) Grant(ctx context.Context, m *entity.Moderator) error {
	capabilities, err := marshalJSON(m.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	query := `
		INSERT INTO moderators (provider_id, user_id, is_admin, capabilities, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, user_id) DO UPDATE SET
			is_admin = excluded.is_admin, capabilities = excluded.capabilities
	`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		m.ProviderID, m.UserID, m.IsAdmin, capabilities, m.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to grant moderator", zap.Error(err))
		return fmt.Errorf("failed to grant moderator: %w", err)
	}
	return nil
}

// Revoke removes a user's grant on a provider
func (r *ModeratorRepository) Revoke(ctx context.Context, providerID, userID string) error {
	query := `DELETE FROM moderators WHERE provider_id = ? AND user_id = ?`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, providerID, userID)
	if err != nil {
		r.logger.Error("Failed to revoke moderator", zap.Error(err))
		return fmt.Errorf("failed to revoke moderator: %w", err)
	}
	return nil
}

// Get retrieves one grant, or nil when the user holds none
func (r *ModeratorRepository) Get(ctx context.Context, providerID, userID string) (*entity.Moderator, error) {
	query := `
		SELECT provider_id, user_id, is_admin, capabilities, created_at
		FROM moderators WHERE provider_id = ? AND user_id = ?
	`
	var m entity.Moderator
	var capabilities string
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, providerID, userID).Scan(
		&m.ProviderID, &m.UserID, &m.IsAdmin, &capabilities, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get moderator: %w", err)
	}
	if err := json.Unmarshal([]byte(capabilities), &m.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	return &m, nil
}

// ListAdmins returns the user ids holding an admin grant on the provider
func (r *ModeratorRepository) ListAdmins(ctx context.Context, providerID string) ([]string, error) {
	query := `SELECT user_id FROM moderators WHERE provider_id = ? AND is_admin = 1 ORDER BY user_id`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HasProviderCapability reports whether the user's grant covers the
// capability. No grant means no capability.
func (r *ModeratorRepository) HasProviderCapability(ctx context.Context, userID string, cap entity.Capability, providerID string) (bool, error) {
	m, err := r.Get(ctx, providerID, userID)
	if err != nil {
		return false, err
	}
	return m.Has(cap), nil
}

// Verify interface compliance
var _ port.PermissionOracle = (*ModeratorRepository)(nil)

// UserRepository resolves acting accounts and their notification addresses
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db.DB, logger: logger}
}

// Create persists a new user
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	query := `INSERT INTO users (id, full_name, email, created_at) VALUES (?, ?, ?, ?)`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		u.ID, u.FullName, u.Email, u.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves one user
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT id, full_name, email, created_at FROM users WHERE id = ?`
	var u entity.User
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.FullName, &u.Email, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// EmailsFor resolves user ids to addresses. Unknown ids are skipped so one
// stale recipient cannot block a notification batch.
func (r *UserRepository) EmailsFor(ctx context.Context, userIDs []string) ([]string, error) {
	emails := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == entity.SystemUserID {
			continue
		}
		var email string
		query := `SELECT email FROM users WHERE id = ?`
		err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&email)
		if err == sql.ErrNoRows {
			r.logger.Info("Skipping unknown notification recipient", zap.String("user_id", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipient: %w", err)
		}
		if email != "" {
			emails = append(emails, email)
		}
	}
	return emails, nil
}
