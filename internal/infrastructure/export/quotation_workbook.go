package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

const (
	SheetQuotation = "Quotation"
	SheetAudit     = "Audit"
	SheetRevisions = "Revisions"

	// skuHeaderRow is the row of the SKU table header on the quotation sheet
	skuHeaderRow = 8
)

var skuColumns = []string{
	"SKU", "Description", "Quantity", "BOM Cost", "Yield %", "Scrap", "Conversion",
	"Sub Total", "Overhead", "Factory Cost", "Margin %", "FOB", "Freight", "Insurance", "CIF", "Selected",
}

// QuotationWorkbook renders quotations as Excel workbooks
type QuotationWorkbook struct {
	companyName string
	logger      *zap.Logger
}

// NewQuotationWorkbook creates a new workbook renderer
func NewQuotationWorkbook(companyName string, logger *zap.Logger) *QuotationWorkbook {
	return &QuotationWorkbook{
		companyName: companyName,
		logger:      logger,
	}
}

// Extension implements port.QuotationRenderer
func (w *QuotationWorkbook) Extension() string {
	return ".xlsx"
}

// Render implements port.QuotationRenderer
func (w *QuotationWorkbook) Render(data *port.QuotationData) ([]byte, error) {
	if data == nil || data.RFQ == nil {
		return nil, fmt.Errorf("quotation has no rfq")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetQuotation); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	w.fillQuotation(f, data)

	if _, err := f.NewSheet(SheetAudit); err != nil {
		return nil, fmt.Errorf("failed to add audit sheet: %w", err)
	}
	w.fillAudit(f, data)

	if len(data.Revisions) > 0 {
		if _, err := f.NewSheet(SheetRevisions); err != nil {
			return nil, fmt.Errorf("failed to add revisions sheet: %w", err)
		}
		w.fillRevisions(f, data)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Info("Quotation workbook rendered",
		zap.Int64("rfq_id", data.RFQ.ID),
		zap.Int("skus", len(data.SKUs)),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

func (w *QuotationWorkbook) fillQuotation(f *excelize.File, data *port.QuotationData) {
	rfq := data.RFQ
	w.setCell(f, SheetQuotation, "A1", w.companyName)
	w.setCell(f, SheetQuotation, "A2", "Quotation")
	w.setCell(f, SheetQuotation, "A3", "RFQ")
	w.setCell(f, SheetQuotation, "B3", fmt.Sprintf("#%d %s", rfq.ID, rfq.Name))
	w.setCell(f, SheetQuotation, "A4", "Client reference")
	w.setCell(f, SheetQuotation, "B4", rfq.ClientRef)
	w.setCell(f, SheetQuotation, "A5", "Version")
	w.setCell(f, SheetQuotation, "B5", rfq.VersionNo)
	w.setCell(f, SheetQuotation, "A6", "State")
	w.setCell(f, SheetQuotation, "B6", data.StateName)

	w.setRow(f, SheetQuotation, skuHeaderRow, toRow(skuColumns))

	var totalFOB, totalCIF float64
	for i, sku := range data.SKUs {
		selected := ""
		if sku.ClientSelected != nil {
			selected = "No"
			if *sku.ClientSelected {
				selected = "Yes"
			}
		}
		w.setRow(f, SheetQuotation, skuHeaderRow+1+i, []interface{}{
			sku.Code, sku.Description, sku.Quantity, sku.BOMCost, deref(sku.YieldPercent),
			sku.ScrapCost, sku.ConversionCost, sku.SubTotalCost, sku.FactoryOverhead,
			sku.TotalFactoryCost, sku.MarginPerc, sku.FOBValue, sku.FreightCost,
			sku.InsuranceCost, sku.CIFValue, selected,
		})
		totalFOB += sku.FOBValue * float64(sku.Quantity)
		totalCIF += sku.CIFValue * float64(sku.Quantity)
	}

	totalRow := skuHeaderRow + len(data.SKUs) + 2
	w.setCell(f, SheetQuotation, cell("K", totalRow), "Total")
	w.setCell(f, SheetQuotation, cell("L", totalRow), totalFOB)
	w.setCell(f, SheetQuotation, cell("O", totalRow), totalCIF)
}

func (w *QuotationWorkbook) fillAudit(f *excelize.File, data *port.QuotationData) {
	w.setRow(f, SheetAudit, 1, toRow([]string{"Time", "User", "Trigger", "State", "Comment"}))
	for i, e := range data.Audit {
		w.setRow(f, SheetAudit, i+2, []interface{}{
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserID, e.Trigger,
			domainwf.State(e.StateID).String(), e.Comment,
		})
	}
}

func (w *QuotationWorkbook) fillRevisions(f *excelize.File, data *port.QuotationData) {
	w.setRow(f, SheetRevisions, 1, toRow([]string{"Version", "RFQ", "State", "Created"}))
	for i, r := range data.Revisions {
		w.setRow(f, SheetRevisions, i+2, []interface{}{
			r.VersionNo, r.ID, domainwf.State(r.StateID).String(), r.CreatedAt.Format("2006-01-02"),
		})
	}
}

// setCell sets a cell value, logging failures
func (w *QuotationWorkbook) setCell(f *excelize.File, sheet, axis string, value interface{}) {
	if err := f.SetCellValue(sheet, axis, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", axis),
			zap.Error(err))
	}
}

func (w *QuotationWorkbook) setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	axis := cell("A", row)
	if err := f.SetSheetRow(sheet, axis, &values); err != nil {
		w.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.String("cell", axis),
			zap.Error(err))
	}
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func deref(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// Verify interface compliance
var _ port.QuotationRenderer = (*QuotationWorkbook)(nil)
