package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, e *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (rfq_id, user_id, state_id, trigger_name, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		e.RFQID, e.UserID, e.StateID, e.Trigger, e.Comment, now)
	if err != nil {
		r.logger.Error("Failed to create audit entry", zap.Int64("rfq_id", e.RFQID), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create audit entry: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	e.ID = id
	e.CreatedAt = now
	return nil
}

// ListByRFQ returns the audit trail in commit order
func (r *AuditRepository) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, rfq_id, user_id, state_id, trigger_name, comment, created_at
		FROM audit_entries WHERE rfq_id = ? ORDER BY id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, rfqID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Int64("rfq_id", rfqID), zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list audit entries: %w", err))
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(&e.ID, &e.RFQID, &e.UserID, &e.StateID, &e.Trigger, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
