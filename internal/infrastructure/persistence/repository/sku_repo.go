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

const skuColumns = `id, rfq_id, code, description, quantity,
	bom_cost, yield_percent, scrap_cost, conversion_cost, factory_overhead_perc,
	margin_perc, freight_cost, insurance_cost,
	sub_total_cost, factory_overhead, total_factory_cost, fob_value, cif_value,
	client_selected, created_at, updated_at`

// SKURepository implements port.SKURepository
type SKURepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSKURepository creates a new SKU repository
func NewSKURepository(db *sql.DB, logger *zap.Logger) port.SKURepository {
	return &SKURepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a SKU including any derived figures it already carries
func (r *SKURepository) Create(ctx context.Context, sku *entity.SKU) error {
	query := `
		INSERT INTO skus (
			rfq_id, code, description, quantity,
			bom_cost, yield_percent, scrap_cost, conversion_cost, factory_overhead_perc,
			margin_perc, freight_cost, insurance_cost,
			sub_total_cost, factory_overhead, total_factory_cost, fob_value, cif_value,
			client_selected, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		sku.RFQID,
		sku.Code,
		sku.Description,
		sku.Quantity,
		sku.BOMCost,
		nullFloat(sku.YieldPercent),
		sku.ScrapCost,
		sku.ConversionCost,
		nullFloat(sku.FactoryOverheadPerc),
		sku.MarginPerc,
		sku.FreightCost,
		sku.InsuranceCost,
		sku.SubTotalCost,
		sku.FactoryOverhead,
		sku.TotalFactoryCost,
		sku.FOBValue,
		sku.CIFValue,
		nullBool(sku.ClientSelected),
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create sku", zap.Int64("rfq_id", sku.RFQID), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to create sku: %w", err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	sku.ID = id
	sku.CreatedAt = now
	sku.UpdatedAt = now
	return nil
}

// GetByID retrieves a SKU by ID
func (r *SKURepository) GetByID(ctx context.Context, id int64) (*entity.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE id = ?`

	sku, err := scanSKU(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get sku by ID", zap.Int64("id", id), zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to get sku: %w", err))
	}
	return sku, nil
}

// ListByRFQ returns the SKUs of an RFQ in insertion order
func (r *SKURepository) ListByRFQ(ctx context.Context, rfqID int64) ([]*entity.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE rfq_id = ? ORDER BY id`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, rfqID)
	if err != nil {
		r.logger.Error("Failed to list skus", zap.Int64("rfq_id", rfqID), zap.Error(err))
		return nil, sqlite.MapError(fmt.Errorf("failed to list skus: %w", err))
	}
	defer rows.Close()

	var skus []*entity.SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sku: %w", err)
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

// UpdateCostInputs replaces the raw cost inputs of a SKU
func (r *SKURepository) UpdateCostInputs(ctx context.Context, id int64, in entity.CostInputs) error {
	query := `
		UPDATE skus SET
			bom_cost = ?, yield_percent = ?, scrap_cost = ?, conversion_cost = ?,
			factory_overhead_perc = ?, margin_perc = ?, freight_cost = ?, insurance_cost = ?,
			updated_at = ?
		WHERE id = ?
	`
	return r.exec(ctx, "cost inputs", id, query,
		in.BOMCost, nullFloat(in.YieldPercent), in.ScrapCost, in.ConversionCost,
		nullFloat(in.FactoryOverheadPerc), in.MarginPerc, in.FreightCost, in.InsuranceCost,
		time.Now(), id)
}

// UpdateCostFigures stores recalculated derived figures
func (r *SKURepository) UpdateCostFigures(ctx context.Context, f entity.CostFigures) error {
	query := `
		UPDATE skus SET
			sub_total_cost = ?, factory_overhead = ?, total_factory_cost = ?,
			fob_value = ?, cif_value = ?, updated_at = ?
		WHERE id = ?
	`
	return r.exec(ctx, "cost figures", f.SKUID, query,
		f.SubTotalCost, f.FactoryOverhead, f.TotalFactoryCost, f.FOBValue, f.CIFValue,
		time.Now(), f.SKUID)
}

// SetClientSelected records the client's choice for a SKU
func (r *SKURepository) SetClientSelected(ctx context.Context, id int64, selected bool) error {
	query := `UPDATE skus SET client_selected = ?, updated_at = ? WHERE id = ?`
	return r.exec(ctx, "client selection", id, query, selected, time.Now(), id)
}

func (r *SKURepository) exec(ctx context.Context, what string, id int64, query string, args ...interface{}) error {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update sku", zap.String("field", what), zap.Int64("id", id), zap.Error(err))
		return sqlite.MapError(fmt.Errorf("failed to update sku %s: %w", what, err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("sku %d not found", id)
	}
	return nil
}

func scanSKU(row rowScanner) (*entity.SKU, error) {
	var sku entity.SKU
	var yield, overheadPerc sql.NullFloat64
	var selected sql.NullBool

	err := row.Scan(
		&sku.ID,
		&sku.RFQID,
		&sku.Code,
		&sku.Description,
		&sku.Quantity,
		&sku.BOMCost,
		&yield,
		&sku.ScrapCost,
		&sku.ConversionCost,
		&overheadPerc,
		&sku.MarginPerc,
		&sku.FreightCost,
		&sku.InsuranceCost,
		&sku.SubTotalCost,
		&sku.FactoryOverhead,
		&sku.TotalFactoryCost,
		&sku.FOBValue,
		&sku.CIFValue,
		&selected,
		&sku.CreatedAt,
		&sku.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if yield.Valid {
		v := yield.Float64
		sku.YieldPercent = &v
	}
	if overheadPerc.Valid {
		v := overheadPerc.Float64
		sku.FactoryOverheadPerc = &v
	}
	if selected.Valid {
		v := selected.Bool
		sku.ClientSelected = &v
	}
	return &sku, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Verify interface compliance
var _ port.SKURepository = (*SKURepository)(nil)
