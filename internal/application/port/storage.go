package port

import (
	"context"

	"github.com/garyjia/rfq-workflow/internal/domain/entity"
)

// FileStorage defines file storage operations
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}

// QuotationData is everything a quotation document is rendered from
type QuotationData struct {
	RFQ       *entity.RFQ
	StateName string
	SKUs      []*entity.SKU
	Audit     []*entity.AuditEntry
	Revisions []*entity.RFQ
}

// QuotationRenderer renders a quotation document
type QuotationRenderer interface {
	Render(data *QuotationData) ([]byte, error)
	Extension() string
}
