package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	"golang.org/x/sync/errgroup"
)

// Message is a notification to render for one recipient
type Message struct {
	RFQ          *entity.RFQ
	AuditEntryID int64
	Recipient    *entity.User
	Template     string
	Vars         map[string]string
}

// DeliveryResult is the outcome of one delivery attempt
type DeliveryResult struct {
	NotificationID  int64
	RecipientUserID int64
	Email           string
	Err             error
}

// NotificationService renders, records and delivers notifications
type NotificationService interface {
	port.TemplateLoader

	// Prepare renders a message and stores it as PENDING. Called inside the
	// transition's transaction so the record commits with the state change.
	Prepare(ctx context.Context, msg Message) (*entity.Notification, error)

	// DeliverAll sends the records in parallel and marks each SENT or FAILED
	DeliverAll(ctx context.Context, notifications []*entity.Notification) []DeliveryResult

	// RetryPending re-sends failed and stale pending records
	RetryPending(ctx context.Context) (int, error)

	ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Notification, error)
}

// NotificationConfig tunes delivery
type NotificationConfig struct {
	SendTimeout       time.Duration
	Concurrency       int
	MaxAttempts       int
	RetryBatchSize    int
	PendingStaleAfter time.Duration
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	templateRepo     port.TemplateRepository
	notifier         port.Notifier
	cfg              NotificationConfig
	logger           Logger

	mu        sync.RWMutex
	templates map[string]*entity.EmailTemplate
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	templateRepo port.TemplateRepository,
	notifier port.Notifier,
	cfg NotificationConfig,
	logger Logger,
) NotificationService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = 50
	}
	if cfg.PendingStaleAfter <= 0 {
		cfg.PendingStaleAfter = 5 * time.Minute
	}
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		templateRepo:     templateRepo,
		notifier:         notifier,
		cfg:              cfg,
		logger:           logger,
		templates:        make(map[string]*entity.EmailTemplate),
	}
}

// LoadEmailTemplate implements port.TemplateLoader. Templates are cached
// for the life of the process.
func (s *notificationServiceImpl) LoadEmailTemplate(ctx context.Context, tag string) (*entity.EmailTemplate, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[tag]
	s.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := s.templateRepo.GetByTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", tag, err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template %s not found", tag)
	}

	s.mu.Lock()
	s.templates[tag] = tmpl
	s.mu.Unlock()
	return tmpl, nil
}

// Prepare renders and records a pending notification
func (s *notificationServiceImpl) Prepare(ctx context.Context, msg Message) (*entity.Notification, error) {
	if msg.Recipient == nil || msg.Recipient.Email == "" {
		return nil, fmt.Errorf("recipient has no email address")
	}

	tmpl, err := s.LoadEmailTemplate(ctx, msg.Template)
	if err != nil {
		return nil, err
	}

	vars := map[string]string{
		"recipient_name": msg.Recipient.FullName(),
	}
	if msg.RFQ != nil {
		vars["rfq_id"] = fmt.Sprintf("%d", msg.RFQ.ID)
		vars["rfq_name"] = msg.RFQ.Name
		vars["client_ref"] = msg.RFQ.ClientRef
	}
	for k, v := range msg.Vars {
		vars[k] = v
	}

	subject, body := Render(tmpl, vars)
	n := &entity.Notification{
		AuditEntryID:    msg.AuditEntryID,
		RecipientUserID: msg.Recipient.ID,
		RecipientEmail:  msg.Recipient.Email,
		TemplateTag:     msg.Template,
		Subject:         subject,
		Body:            body,
		Status:          entity.NotificationStatusPending,
	}
	if msg.RFQ != nil {
		n.RFQID = msg.RFQ.ID
	}

	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("record notification: %w", err)
	}
	return n, nil
}

// Render interpolates {{name}} placeholders in a template's subject and
// body, appending the signature to the body
func Render(tmpl *entity.EmailTemplate, vars map[string]string) (subject, body string) {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)

	body = tmpl.BodyHTML
	if tmpl.SignatureHTML != "" {
		body += "\n" + tmpl.SignatureHTML
	}
	return r.Replace(tmpl.Subject), r.Replace(body)
}

// DeliverAll sends notifications with bounded parallelism. Failures are
// recorded per notification and never returned as a group error.
func (s *notificationServiceImpl) DeliverAll(ctx context.Context, notifications []*entity.Notification) []DeliveryResult {
	results := make([]DeliveryResult, len(notifications))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, n := range notifications {
		i, n := i, n
		g.Go(func() error {
			results[i] = s.deliver(gctx, n)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *notificationServiceImpl) deliver(ctx context.Context, n *entity.Notification) DeliveryResult {
	res := DeliveryResult{
		NotificationID:  n.ID,
		RecipientUserID: n.RecipientUserID,
		Email:           n.RecipientEmail,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err := s.notifier.Notify(sendCtx, n.RecipientEmail, n.Subject, n.Body)
	cancel()

	if err != nil {
		res.Err = err
		s.logger.Error("Notification delivery failed",
			"notification_id", n.ID, "rfq_id", n.RFQID, "email", n.RecipientEmail, "error", err)
		if markErr := s.notificationRepo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
			s.logger.Error("Failed to record delivery failure", "notification_id", n.ID, "error", markErr)
		}
		return res
	}

	if markErr := s.notificationRepo.MarkSent(ctx, n.ID, time.Now()); markErr != nil {
		s.logger.Error("Failed to record delivery", "notification_id", n.ID, "error", markErr)
	}
	s.logger.Info("Notification delivered", "notification_id", n.ID, "rfq_id", n.RFQID, "email", n.RecipientEmail)
	return res
}

// RetryPending re-sends retryable records and returns how many were delivered
func (s *notificationServiceImpl) RetryPending(ctx context.Context) (int, error) {
	pending, err := s.notificationRepo.ListRetryable(ctx, s.cfg.MaxAttempts,
		time.Now().Add(-s.cfg.PendingStaleAfter), s.cfg.RetryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable notifications: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	delivered := 0
	for _, res := range s.DeliverAll(ctx, pending) {
		if res.Err == nil {
			delivered++
		}
	}
	s.logger.Info("Retried notifications", "attempted", len(pending), "delivered", delivered)
	return delivered, nil
}

// ListByRFQ returns the notification records of an RFQ
func (s *notificationServiceImpl) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.Notification, error) {
	return s.notificationRepo.ListByRFQ(ctx, rfqID)
}
