package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/pkg/database"
)

// NodeRequestRepository implements port.NodeRequestRepository
type NodeRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNodeRequestRepository creates a new node request repository
func NewNodeRequestRepository(db *database.DB, logger *zap.Logger) port.NodeRequestRepository {
	return &NodeRequestRepository{db: db.DB, logger: logger}
}

// Create persists a new node request
func (r *NodeRequestRepository) Create(ctx context.Context, req *entity.NodeRequest) error {
	query := `
		INSERT INTO node_requests (
			id, node_id, creator_id, request_type, comment,
			requested_permissions, machine_state, date_last_transitioned,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.NodeID, req.CreatorID, string(req.RequestType), req.Comment,
		req.RequestedPermissions, req.State.String(), nullTime(req.DateLastTransitioned),
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create node request", zap.Error(err))
		return fmt.Errorf("failed to create node request: %w", err)
	}
	return nil
}

// GetByID retrieves one node request
func (r *NodeRequestRepository) GetByID(ctx context.Context, id string) (*entity.NodeRequest, error) {
	query := nodeRequestSelect + ` WHERE id = ?`
	req, err := scanNodeRequest(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node request: %w", err)
	}
	return req, nil
}

// Update persists node request changes
func (r *NodeRequestRepository) Update(ctx context.Context, req *entity.NodeRequest) error {
	query := `
		UPDATE node_requests SET
			comment = ?, requested_permissions = ?, machine_state = ?,
			date_last_transitioned = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.Comment, req.RequestedPermissions, req.State.String(),
		nullTime(req.DateLastTransitioned), req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update node request", zap.Error(err))
		return fmt.Errorf("failed to update node request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("node request %s not found", req.ID)
	}
	return nil
}

// ListByNode returns a node's requests, oldest first
func (r *NodeRequestRepository) ListByNode(ctx context.Context, nodeID string) ([]*entity.NodeRequest, error) {
	query := nodeRequestSelect + ` WHERE node_id = ? ORDER BY created_at ASC`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.NodeRequest
	for rows.Next() {
		req, err := scanNodeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

const nodeRequestSelect = `
	SELECT id, node_id, creator_id, request_type, comment,
		requested_permissions, machine_state, date_last_transitioned,
		created_at, updated_at
	FROM node_requests
`

func scanNodeRequest(row rowScanner) (*entity.NodeRequest, error) {
	var req entity.NodeRequest
	var requestType, state string
	var lastTransitioned sql.NullTime
	err := row.Scan(
		&req.ID, &req.NodeID, &req.CreatorID, &requestType, &req.Comment,
		&req.RequestedPermissions, &state, &lastTransitioned,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.RequestType = entity.RequestType(requestType)
	req.State = workflowState(state)
	req.DateLastTransitioned = scanTime(lastTransitioned)
	return &req, nil
}

// PreprintRequestRepository implements port.PreprintRequestRepository
type PreprintRequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPreprintRequestRepository creates a new preprint request repository
func NewPreprintRequestRepository(db *database.DB, logger *zap.Logger) port.PreprintRequestRepository {
	return &PreprintRequestRepository{db: db.DB, logger: logger}
}

// Create persists a new preprint request
func (r *PreprintRequestRepository) Create(ctx context.Context, req *entity.PreprintRequest) error {
	query := `
		INSERT INTO preprint_requests (
			id, preprint_id, creator_id, request_type, comment,
			machine_state, date_last_transitioned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.PreprintID, req.CreatorID, string(req.RequestType), req.Comment,
		req.State.String(), nullTime(req.DateLastTransitioned),
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create preprint request", zap.Error(err))
		return fmt.Errorf("failed to create preprint request: %w", err)
	}
	return nil
}

// GetByID retrieves one preprint request
func (r *PreprintRequestRepository) GetByID(ctx context.Context, id string) (*entity.PreprintRequest, error) {
	query := preprintRequestSelect + ` WHERE id = ?`
	req, err := scanPreprintRequest(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("preprint request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preprint request: %w", err)
	}
	return req, nil
}

// Update persists preprint request changes
func (r *PreprintRequestRepository) Update(ctx context.Context, req *entity.PreprintRequest) error {
	query := `
		UPDATE preprint_requests SET
			comment = ?, machine_state = ?, date_last_transitioned = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		req.Comment, req.State.String(), nullTime(req.DateLastTransitioned), req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update preprint request", zap.Error(err))
		return fmt.Errorf("failed to update preprint request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("preprint request %s not found", req.ID)
	}
	return nil
}

// ListByPreprint returns a preprint's requests, oldest first
func (r *PreprintRequestRepository) ListByPreprint(ctx context.Context, preprintID string) ([]*entity.PreprintRequest, error) {
	query := preprintRequestSelect + ` WHERE preprint_id = ? ORDER BY created_at ASC`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, preprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preprint requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.PreprintRequest
	for rows.Next() {
		req, err := scanPreprintRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preprint request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

const preprintRequestSelect = `
	SELECT id, preprint_id, creator_id, request_type, comment,
		machine_state, date_last_transitioned, created_at, updated_at
	FROM preprint_requests
`

func scanPreprintRequest(row rowScanner) (*entity.PreprintRequest, error) {
	var req entity.PreprintRequest
	var requestType, state string
	var lastTransitioned sql.NullTime
	err := row.Scan(
		&req.ID, &req.PreprintID, &req.CreatorID, &requestType, &req.Comment,
		&state, &lastTransitioned, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.RequestType = entity.RequestType(requestType)
	req.State = workflowState(state)
	req.DateLastTransitioned = scanTime(lastTransitioned)
	return &req, nil
}

// Verify interface compliance
var (
	_ port.NodeRequestRepository     = (*NodeRequestRepository)(nil)
	_ port.PreprintRequestRepository = (*PreprintRequestRepository)(nil)
)
