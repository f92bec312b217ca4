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

// AssignmentRepository implements port.AssignmentRepository
type AssignmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sql.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an assignment edge
func (r *AssignmentRepository) Create(ctx context.Context, a *entity.Assignment) error {
	query := `
		INSERT INTO assignments (
			rfq_id, assigned_to_user, assigned_to_role, assigned_by_user, assigned_by_role,
			plant_id, comment, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if a.Status == "" {
		a.Status = entity.AssignmentStatusActive
	}
	now := time.Now()

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		a.RFQID,
		a.AssignedToUser,
		a.AssignedToRole,
		a.AssignedByUser,
		a.AssignedByRole,
		nullInt(a.PlantID),
		a.Comment,
		a.Status,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create assignment",
			zap.Int64("rfq_id", a.RFQID),
			zap.Int64("user_id", a.AssignedToUser),
			zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create assignment: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	a.ID = id
	a.CreatedAt = now
	return nil
}

// ListByRFQ returns all edges of an RFQ in creation order
func (r *AssignmentRepository) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Assignment, error) {
	query := `
		SELECT id, rfq_id, assigned_to_user, assigned_to_role, assigned_by_user, assigned_by_role,
			plant_id, comment, status, created_at
		FROM assignments WHERE rfq_id = ? ORDER BY id
	`
	return r.query(ctx, query, rfqID)
}

// ListByRFQAndRole returns the edges of an RFQ for one role
func (r *AssignmentRepository) ListByRFQAndRole(ctx context.Context, rfqID int64, role string) ([]*entity.Assignment, error) {
	query := `
		SELECT id, rfq_id, assigned_to_user, assigned_to_role, assigned_by_user, assigned_by_role,
			plant_id, comment, status, created_at
		FROM assignments WHERE rfq_id = ? AND assigned_to_role = ? ORDER BY id
	`
	return r.query(ctx, query, rfqID, role)
}

// Exists reports whether the user holds an edge for the role on the RFQ
func (r *AssignmentRepository) Exists(ctx context.Context, rfqID, userID int64, role string) (bool, error) {
	var n int
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(1) FROM assignments WHERE rfq_id = ? AND assigned_to_user = ? AND assigned_to_role = ?`,
		rfqID, userID, role,
	).Scan(&n)
	if err != nil {
		return false, sqlite.MapError(fmt.Errorf("failed to check assignment: %w", err))
	}
	return n > 0, nil
}

func (r *AssignmentRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Assignment, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list assignments: %w", err))
	}
	defer rows.Close()

	var list []*entity.Assignment
	for rows.Next() {
		var a entity.Assignment
		var plant sql.NullInt64
		if err := rows.Scan(
			&a.ID,
			&a.RFQID,
			&a.AssignedToUser,
			&a.AssignedToRole,
			&a.AssignedByUser,
			&a.AssignedByRole,
			&plant,
			&a.Comment,
			&a.Status,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if plant.Valid {
			p := plant.Int64
			a.PlantID = &p
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// Verify interface compliance
var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
