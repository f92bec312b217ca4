package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/event"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// QuotationService renders quotation documents into file storage
type QuotationService struct {
	rfqRepo   port.RFQRepository
	skuRepo   port.SKURepository
	auditRepo port.AuditRepository
	renderer  port.QuotationRenderer
	storage   port.FileStorage
	catalog   *domainwf.Catalog
	logger    Logger
}

// NewQuotationService creates a new QuotationService
func NewQuotationService(
	rfqRepo port.RFQRepository,
	skuRepo port.SKURepository,
	auditRepo port.AuditRepository,
	renderer port.QuotationRenderer,
	storage port.FileStorage,
	catalog *domainwf.Catalog,
	logger Logger,
) *QuotationService {
	return &QuotationService{
		rfqRepo:   rfqRepo,
		skuRepo:   skuRepo,
		auditRepo: auditRepo,
		renderer:  renderer,
		storage:   storage,
		catalog:   catalog,
		logger:    logger,
	}
}

// Export renders the quotation of an RFQ and returns its storage path
func (s *QuotationService) Export(ctx context.Context, rfqID int64) (string, error) {
	rfq, err := s.rfqRepo.GetByID(ctx, rfqID)
	if err != nil {
		return "", fmt.Errorf("load rfq: %w", err)
	}
	if rfq == nil {
		return "", fmt.Errorf("%w: rfq %d", domainwf.ErrNotFound, rfqID)
	}

	data := &port.QuotationData{
		RFQ:       rfq,
		StateName: s.catalog.Describe(domainwf.State(rfq.StateID)),
	}
	if data.SKUs, err = s.skuRepo.ListByRFQ(ctx, rfqID); err != nil {
		return "", fmt.Errorf("load skus: %w", err)
	}
	if data.Audit, err = s.auditRepo.ListByRFQ(ctx, rfqID); err != nil {
		return "", fmt.Errorf("load audit trail: %w", err)
	}
	if !rfq.IsRevision() {
		if data.Revisions, err = s.rfqRepo.ListRevisions(ctx, rfqID); err != nil {
			return "", fmt.Errorf("load revisions: %w", err)
		}
	}

	content, err := s.renderer.Render(data)
	if err != nil {
		return "", fmt.Errorf("render quotation: %w", err)
	}

	path := fmt.Sprintf("rfq-%d/quotation-v%d-%s%s", rfqID, rfq.VersionNo,
		time.Now().Format("20060102-150405"), s.renderer.Extension())
	if err := s.storage.Save(ctx, path, content); err != nil {
		return "", fmt.Errorf("save quotation: %w", err)
	}

	s.logger.Info("Quotation exported", "rfq_id", rfqID, "path", path, "bytes", len(content))
	return path, nil
}

// Read returns a previously exported quotation
func (s *QuotationService) Read(ctx context.Context, path string) ([]byte, error) {
	return s.storage.Read(ctx, path)
}

// HandleRFQClosed exports the final quotation when an RFQ closes
func (s *QuotationService) HandleRFQClosed(ctx context.Context, evt *event.Event) error {
	path, err := s.Export(ctx, evt.RFQID)
	if err != nil {
		s.logger.Error("Failed to export closed rfq", "rfq_id", evt.RFQID, "error", err)
		return err
	}
	s.logger.Info("Closed rfq exported", "rfq_id", evt.RFQID, "path", path, "correlation_id", evt.CorrelationID)
	return nil
}
