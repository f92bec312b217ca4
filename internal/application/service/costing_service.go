package service

import (
	"context"
	"fmt"
	"math"

	"github.com/garyjia/rfq-workflow/internal/application/port"
	"github.com/garyjia/rfq-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/rfq-workflow/internal/domain/workflow"
)

// CostingService recomputes SKU cost figures from their stored raw inputs
type CostingService struct {
	skuRepo port.SKURepository
	logger  Logger
}

// NewCostingService creates a new CostingService
func NewCostingService(skuRepo port.SKURepository, logger Logger) *CostingService {
	return &CostingService{
		skuRepo: skuRepo,
		logger:  logger,
	}
}

// RecalculateCosts implements port.CostCalculator. Writes go through ctx, so
// inside a transaction they commit or roll back with it.
func (s *CostingService) RecalculateCosts(ctx context.Context, rfqID int64, skuID *int64, mode domainwf.RecalcMode) ([]entity.CostFigures, error) {
	var skus []*entity.SKU
	if skuID != nil {
		sku, err := s.skuRepo.GetByID(ctx, *skuID)
		if err != nil {
			return nil, fmt.Errorf("failed to load sku %d: %w", *skuID, err)
		}
		if sku == nil || sku.RFQID != rfqID {
			return nil, fmt.Errorf("%w: sku %d on rfq %d", domainwf.ErrNotFound, *skuID, rfqID)
		}
		skus = []*entity.SKU{sku}
	} else {
		list, err := s.skuRepo.ListByRFQ(ctx, rfqID)
		if err != nil {
			return nil, fmt.Errorf("failed to load skus of rfq %d: %w", rfqID, err)
		}
		skus = list
	}

	figures := make([]entity.CostFigures, 0, len(skus))
	for _, sku := range skus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := ComputeCosts(sku, mode)
		if err := s.skuRepo.UpdateCostFigures(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to store costs of sku %d: %w", sku.ID, err)
		}
		figures = append(figures, f)
	}

	s.logger.Info("Recalculated costs", "rfq_id", rfqID, "skus", len(figures), "mode", mode.String())
	return figures, nil
}

// ComputeCosts derives the cost figures of one SKU.
//
//	material     = bom / (yield/100)          (bom when no yield is set)
//	sub total    = material + scrap + conversion
//	overhead     = sub total * overhead%/100
//	factory cost = sub total + overhead
//	FOB          = factory cost * (1 + margin%/100)
//	CIF          = FOB + freight + insurance
//
// With RecalcOverheadIfPresent a SKU without an overhead percentage keeps
// its stored overhead.
func ComputeCosts(sku *entity.SKU, mode domainwf.RecalcMode) entity.CostFigures {
	material := sku.BOMCost
	if sku.YieldPercent != nil && *sku.YieldPercent > 0 {
		material = sku.BOMCost / (*sku.YieldPercent / 100)
	}
	subTotal := material + sku.ScrapCost + sku.ConversionCost

	overhead := 0.0
	switch {
	case sku.FactoryOverheadPerc != nil:
		overhead = subTotal * *sku.FactoryOverheadPerc / 100
	case mode == domainwf.RecalcOverheadIfPresent:
		overhead = sku.FactoryOverhead
	}

	factory := subTotal + overhead
	fob := factory * (1 + sku.MarginPerc/100)
	cif := fob + sku.FreightCost + sku.InsuranceCost

	return entity.CostFigures{
		SKUID:            sku.ID,
		SubTotalCost:     round2(subTotal),
		FactoryOverhead:  round2(overhead),
		TotalFactoryCost: round2(factory),
		FOBValue:         round2(fob),
		CIFValue:         round2(cif),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Verify interface compliance
var _ port.CostCalculator = (*CostingService)(nil)
