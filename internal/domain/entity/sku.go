package entity

import "time"

// SKU is a priced product line of an RFQ. Raw inputs are edited by users;
// the derived figures are owned by cost recalculation.
type SKU struct {
	ID          int64  `json:"id"`
	RFQID       int64  `json:"rfq_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`

	CostInputs

	SubTotalCost     float64 `json:"sub_total_cost"`
	FactoryOverhead  float64 `json:"factory_overhead"`
	TotalFactoryCost float64 `json:"total_factory_cost"`
	FOBValue         float64 `json:"fob_value"`
	CIFValue         float64 `json:"cif_value"`

	ClientSelected *bool     `json:"client_selected,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CostInputs are the raw per-unit figures cost recalculation works from
type CostInputs struct {
	BOMCost             float64  `json:"bom_cost"`
	YieldPercent        *float64 `json:"yield_percent,omitempty"`
	ScrapCost           float64  `json:"scrap_cost"`
	ConversionCost      float64  `json:"conversion_cost"`
	FactoryOverheadPerc *float64 `json:"factory_overhead_perc,omitempty"`
	MarginPerc          float64  `json:"margin_perc"`
	FreightCost         float64  `json:"freight_cost"`
	InsuranceCost       float64  `json:"insurance_cost"`
}

// CostFigures are the derived monetary values of one SKU
type CostFigures struct {
	SKUID            int64   `json:"sku_id"`
	SubTotalCost     float64 `json:"sub_total_cost"`
	FactoryOverhead  float64 `json:"factory_overhead"`
	TotalFactoryCost float64 `json:"total_factory_cost"`
	FOBValue         float64 `json:"fob_value"`
	CIFValue         float64 `json:"cif_value"`
}
