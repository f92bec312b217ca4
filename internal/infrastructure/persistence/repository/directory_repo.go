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

const userColumns = `id, email, first_name, last_name, role, plant_id, is_default, active, created_at`

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Create inserts a directory user
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	query := `
		INSERT INTO users (email, first_name, last_name, role, plant_id, is_default, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		u.Email, u.FirstName, u.LastName, u.Role, nullInt(u.PlantID), u.IsDefault, u.Active, now)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("email", u.Email), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create user: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to get user: %w", err))
	}
	return u, nil
}

// ListByRole returns active users holding a role
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? AND active = 1 ORDER BY id`
	return r.query(ctx, query, role)
}

// ListByPlantAndRole returns active users of a plant holding a role
func (r *UserRepository) ListByPlantAndRole(ctx context.Context, plantID int64, role string) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE plant_id = ? AND role = ? AND active = 1 ORDER BY id`
	return r.query(ctx, query, plantID, role)
}

// GetDefault returns the default active user for a role
func (r *UserRepository) GetDefault(ctx context.Context, role string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? AND is_default = 1 AND active = 1 ORDER BY id LIMIT 1`
	u, err := scanUser(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, role))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to get default user: %w", err))
	}
	return u, nil
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list users: %w", err))
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*entity.User, error) {
	var u entity.User
	var plant sql.NullInt64
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &plant,
		&u.IsDefault, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	if plant.Valid {
		p := plant.Int64
		u.PlantID = &p
	}
	return &u, nil
}

// PlantRepository implements port.PlantRepository
type PlantRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPlantRepository creates a new plant repository
func NewPlantRepository(db *sql.DB, logger *zap.Logger) port.PlantRepository {
	return &PlantRepository{db: db, logger: logger}
}

// Create inserts a plant
func (r *PlantRepository) Create(ctx context.Context, p *entity.Plant) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO plants (code, name) VALUES (?, ?)`, p.Code, p.Name)
	if err != nil {
		r.logger.Error("Failed to create plant", zap.String("code", p.Code), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create plant: %w", err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a plant by ID
func (r *PlantRepository) GetByID(ctx context.Context, id int64) (*entity.Plant, error) {
	var p entity.Plant
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, code, name FROM plants WHERE id = ?`, id).Scan(&p.ID, &p.Code, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to get plant: %w", err))
	}
	return &p, nil
}

// List returns all plants
func (r *PlantRepository) List(ctx context.Context) ([]*entity.Plant, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, `SELECT id, code, name FROM plants ORDER BY id`)
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to list plants: %w", err))
	}
	defer rows.Close()

	var plants []*entity.Plant
	for rows.Next() {
		var p entity.Plant
		if err := rows.Scan(&p.ID, &p.Code, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan plant: %w", err)
		}
		plants = append(plants, &p)
	}
	return plants, rows.Err()
}

// Verify interface compliance
var (
	_ port.UserRepository  = (*UserRepository)(nil)
	_ port.PlantRepository = (*PlantRepository)(nil)
)
