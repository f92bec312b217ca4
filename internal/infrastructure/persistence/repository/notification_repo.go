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

const notificationColumns = `id, rfq_id, audit_entry_id, recipient_user_id, recipient_email,
	template_tag, subject, body, status, attempts, last_error, created_at, sent_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			rfq_id, audit_entry_id, recipient_user_id, recipient_email, template_tag,
			subject, body, status, attempts, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}
	now := time.Now()

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		n.RFQID,
		n.AuditEntryID,
		n.RecipientUserID,
		n.RecipientEmail,
		n.TemplateTag,
		n.Subject,
		n.Body,
		n.Status,
		n.Attempts,
		n.LastError,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.Int64("rfq_id", n.RFQID), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create notification: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	n.CreatedAt = now
	return nil
}

// GetByID retrieves a notification record
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, sqlite.MapError(fmt.Errorf("failed to get notification: %w", err))
	}
	return n, nil
}

// ListByRFQ returns every notification sent for an RFQ
func (r *NotificationRepository) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE rfq_id = ? ORDER BY id`
	return r.query(ctx, query, rfqID)
}

// ListRetryable returns failed and stale pending records below the attempt limit
func (r *NotificationRepository) ListRetryable(ctx context.Context, maxAttempts int, pendingBefore time.Time, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE attempts < ?
		  AND (status = ? OR (status = ? AND updated_at < ?))
		ORDER BY id LIMIT ?`
	return r.query(ctx, query, maxAttempts,
		entity.NotificationStatusFailed, entity.NotificationStatusPending, pendingBefore, limit)
}

// MarkSent records a successful delivery attempt
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications SET status = ?, attempts = attempts + 1, last_error = '',
			sent_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.NotificationStatusSent, sentAt, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to mark notification sent: %w", err))
	}
	return nil
}

// MarkFailed records a failed delivery attempt
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE notifications SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.NotificationStatusFailed, errMsg, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification failed", zap.Int64("id", id), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to mark notification failed: %w", err))
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list notifications: %w", err))
	}
	defer rows.Close()

	var list []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var n entity.Notification
	var sentAt sql.NullTime

	err := row.Scan(
		&n.ID,
		&n.RFQID,
		&n.AuditEntryID,
		&n.RecipientUserID,
		&n.RecipientEmail,
		&n.TemplateTag,
		&n.Subject,
		&n.Body,
		&n.Status,
		&n.Attempts,
		&n.LastError,
		&n.CreatedAt,
		&sentAt,
	)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
