package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	"github.com/garyjia/rfq-workflow/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StateRepository implements port.StateRepository
type StateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStateRepository creates a new states lookup repository
func NewStateRepository(db *sql.DB, logger *zap.Logger) port.StateRepository {
	return &StateRepository{db: db, logger: logger}
}

// List returns every row of the states table
func (r *StateRepository) List(ctx context.Context) ([]*entity.StateDefinition, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, `SELECT id, name, terminal FROM states ORDER BY id`)
	if err != nil {
		r.logger.Error("Failed to list states", zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list states: %w", err))
	}
	defer rows.Close()

	var states []*entity.StateDefinition
	for rows.Next() {
		var s entity.StateDefinition
		if err := rows.Scan(&s.ID, &s.Name, &s.Terminal); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		states = append(states, &s)
	}
	return states, rows.Err()
}

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new email template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// GetByTag retrieves a template by tag
func (r *TemplateRepository) GetByTag(ctx context.Context, tag string) (*entity.EmailTemplate, error) {
	var t entity.EmailTemplate
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT tag, subject, body_html, signature_html FROM email_templates WHERE tag = ?`, tag,
	).Scan(&t.Tag, &t.Subject, &t.BodyHTML, &t.SignatureHTML)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.String("tag", tag), zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to get template: %w", err))
	}
	return &t, nil
}

// Verify interface compliance
var (
	_ port.StateRepository    = (*StateRepository)(nil)
	_ port.TemplateRepository = (*TemplateRepository)(nil)
)
