package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const rfqColumns = `id, name, client_ref, account_manager_id, state_id, active,
	version_no, parent_rfq_id, row_version, created_by, created_at, updated_at`

// RFQRepository implements port.RFQRepository
type RFQRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRFQRepository creates a new RFQ repository
func NewRFQRepository(db *sql.DB, logger *zap.Logger) port.RFQRepository {
	return &RFQRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an original RFQ (version 0)
func (r *RFQRepository) Create(ctx context.Context, rfq *entity.RFQ) error {
	return r.insert(ctx, rfq)
}

// CreateRevision inserts a revision snapshot row
func (r *RFQRepository) CreateRevision(ctx context.Context, revision *entity.RFQ) error {
	if revision.ParentRFQID == nil || revision.VersionNo <= entity.OriginalVersionNo {
		return fmt.Errorf("revision requires parent and positive version, got version %d", revision.VersionNo)
	}
	return r.insert(ctx, revision)
}

func (r *RFQRepository) insert(ctx context.Context, rfq *entity.RFQ) error {
	query := `
		INSERT INTO rfqs (
			name, client_ref, account_manager_id, state_id, active,
			version_no, parent_rfq_id, row_version, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`

	now := time.Now()
	var parent sql.NullInt64
	if rfq.ParentRFQID != nil {
		parent = sql.NullInt64{Int64: *rfq.ParentRFQID, Valid: true}
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		rfq.Name,
		rfq.ClientRef,
		rfq.AccountManagerID,
		rfq.StateID,
		rfq.Active,
		rfq.VersionNo,
		parent,
		rfq.CreatedBy,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create rfq",
			zap.Int("version_no", rfq.VersionNo), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create rfq: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rfq.ID = id
	rfq.RowVersion = 1
	rfq.CreatedAt = now
	rfq.UpdatedAt = now
	return nil
}

// GetByID retrieves an RFQ by ID
func (r *RFQRepository) GetByID(ctx context.Context, id int64) (*entity.RFQ, error) {
	query := `SELECT ` + rfqColumns + ` FROM rfqs WHERE id = ?`

	rfq, err := scanRFQ(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get rfq by ID", zap.Int64("id", id), zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to get rfq: %w", err))
	}
	return rfq, nil
}

// List returns original RFQs, newest first
func (r *RFQRepository) List(ctx context.Context, limit, offset int) ([]*entity.RFQ, error) {
	query := `SELECT ` + rfqColumns + ` FROM rfqs WHERE version_no = 0 ORDER BY id DESC LIMIT ? OFFSET ?`
	return r.queryList(ctx, "failed to list rfqs", query, limit, offset)
}

// ListRevisions returns the revision snapshots of an RFQ in version order
func (r *RFQRepository) ListRevisions(ctx context.Context, parentID int64) ([]*entity.RFQ, error) {
	query := `SELECT ` + rfqColumns + ` FROM rfqs WHERE parent_rfq_id = ? ORDER BY version_no`
	return r.queryList(ctx, "failed to list revisions", query, parentID)
}

// MaxVersionNo returns the highest revision number of an RFQ, 0 when none exist
func (r *RFQRepository) MaxVersionNo(ctx context.Context, parentID int64) (int, error) {
	var max int
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_no), 0) FROM rfqs WHERE parent_rfq_id = ?`, parentID,
	).Scan(&max)
	if err != nil {
		return 0, sqlite.MapError(fmt.Errorf("failed to get max version: %w", err))
	}
	return max, nil
}

// AddPlants links requested plants to an RFQ. An unknown plant id fails the
// foreign key and is reported as a validation error.
func (r *RFQRepository) AddPlants(ctx context.Context, rfqID int64, plantIDs []int64) error {
	exec := sqlite.Executor(ctx, r.db)
	for _, plantID := range plantIDs {
		_, err := exec.ExecContext(ctx,
			`INSERT OR IGNORE INTO rfq_plants (rfq_id, plant_id) VALUES (?, ?)`, rfqID, plantID)
		if err != nil {
			r.logger.Error("Failed to add rfq plant",
				zap.Int64("rfq_id", rfqID), zap.Int64("plant_id", plantID), zap.Error(err))
			return sqlite.MapError(fmt.Errorf("failed to add plant %d: %w", plantID, err))
		}
	}
	return nil
}

// ListPlants returns the requested plant ids of an RFQ in ascending order
func (r *RFQRepository) ListPlants(ctx context.Context, rfqID int64) ([]int64, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx,
		`SELECT plant_id FROM rfq_plants WHERE rfq_id = ? ORDER BY plant_id`, rfqID)
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to list rfq plants: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rfq plant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompareAndSetState updates the state if the row version is unchanged
func (r *RFQRepository) CompareAndSetState(ctx context.Context, id, expectedRowVersion, stateID int64) error {
	query := `
		UPDATE rfqs SET state_id = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`
	return r.compareAndSet(ctx, "state", query, stateID, time.Now(), id, expectedRowVersion)
}

// CompareAndSetActive updates the active flag if the row version is unchanged
func (r *RFQRepository) CompareAndSetActive(ctx context.Context, id, expectedRowVersion int64, active bool) error {
	query := `
		UPDATE rfqs SET active = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`
	return r.compareAndSet(ctx, "active", query, active, time.Now(), id, expectedRowVersion)
}

// Touch bumps the row version if it is unchanged
func (r *RFQRepository) Touch(ctx context.Context, id, expectedRowVersion int64) error {
	query := `
		UPDATE rfqs SET row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`
	return r.compareAndSet(ctx, "row version", query, time.Now(), id, expectedRowVersion)
}

func (r *RFQRepository) compareAndSet(ctx context.Context, what, query string, args ...interface{}) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update rfq", zap.String("field", what), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to update rfq %s: %w", what, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rfq %s changed since it was read", domainwf.ErrConcurrencyConflict, what)
	}
	return nil
}

func (r *RFQRepository) queryList(ctx context.Context, msg, query string, args ...interface{}) ([]*entity.RFQ, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error(msg, zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("%s: %w", msg, err))
	}
	defer rows.Close()

	var rfqs []*entity.RFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rfq: %w", err)
		}
		rfqs = append(rfqs, rfq)
	}

	return rfqs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRFQ(row rowScanner) (*entity.RFQ, error) {
	var rfq entity.RFQ
	var parent sql.NullInt64

	err := row.Scan(
		&rfq.ID,
		&rfq.Name,
		&rfq.ClientRef,
		&rfq.AccountManagerID,
		&rfq.StateID,
		&rfq.Active,
		&rfq.VersionNo,
		&parent,
		&rfq.RowVersion,
		&rfq.CreatedBy,
		&rfq.CreatedAt,
		&rfq.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		p := parent.Int64
		rfq.ParentRFQID = &p
	}
	return &rfq, nil
}

// Verify interface compliance
var _ port.RFQRepository = (*RFQRepository)(nil)
