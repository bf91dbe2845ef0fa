package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/workflow"
	"github.com/openscience/moderation/pkg/database"
)

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// contextKey for transaction propagation
type contextKey string

const txKey = contextKey("tx")

// getExecutor returns the transaction carried by the context, or the bare
// connection when the caller runs outside one.
func getExecutor(ctx context.Context, db *sql.DB) executor {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxManager implements port.TransactionManager by carrying the open
// transaction in the context, so every repository call inside the closure
// joins it transparently.
type TxManager struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTxManager creates a transaction manager over the database
func NewTxManager(db *database.DB, logger *zap.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

// WithTransaction runs fn inside one transaction. A nested call joins the
// transaction already in the context instead of opening a second one.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		m.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}
	return nil
}

// Verify interface compliance
var _ port.TransactionManager = (*TxManager)(nil)

// workflowState converts a persisted state column
func workflowState(s string) workflow.State {
	return workflow.State(s)
}

// workflowTrigger converts a persisted trigger column
func workflowTrigger(s string) workflow.Trigger {
	return workflow.Trigger(s)
}

// marshalJSON serializes list-valued columns
func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanTime converts a nullable timestamp column
func scanTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullTime converts an optional timestamp for binding
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
