package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction implements port.TransactionManager.
// Nested calls join the outer transaction.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return MapError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return MapError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// extractTx retrieves transaction from context if present
func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Executor returns the transaction carried by ctx, or db when there is none
func Executor(ctx context.Context, db *sql.DB) QueryExecutor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	return extractTx(ctx) != nil
}

// QueryExecutor covers both *sql.DB and *sql.Tx
type QueryExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// MapError classifies SQLite errors into workflow errors. Busy, locked and
// unique-constraint failures mean another writer got there first; a foreign
// key failure means the request named a row that does not exist.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", domainwf.ErrConcurrencyConflict, err)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", domainwf.ErrConcurrencyConflict, err)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", domainwf.ErrValidation, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domainwf.ErrTimeout, err)
	}
	return err
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
