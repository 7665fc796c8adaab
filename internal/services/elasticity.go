package services

import (
	"context"
	"fmt"
	"math"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
)

const (
	closedFormDemandSlope = 0.015
	noBreakEven           = "No Break-even"

	FallbackClosedForm     = "closed_form_elasticity"
	FallbackSyntheticPrice = "synthetic_price"
	FallbackNoPrice        = "no_price_column"
)

// ElasticityAnalyzer simulates how demand, revenue and profit respond to
// discounts.
type ElasticityAnalyzer struct {
	cfg       config.AnalyticsConfig
	synthetic ingest.SyntheticPolicy
}

func NewElasticityAnalyzer(cfg config.AnalyticsConfig, synthetic ingest.SyntheticPolicy) *ElasticityAnalyzer {
	return &ElasticityAnalyzer{cfg: cfg, synthetic: synthetic}
}

// priceSeries picks the price column: explicit prices first, then order
// values read from the file, then a synthesized price when the policy allows.
func (a *ElasticityAnalyzer) priceSeries(sales *models.SalesFrame) (string, []float64, []models.Fallback) {
	n := len(sales.Records)
	prices := make([]float64, n)

	hasPrice := false
	for i, s := range sales.Records {
		prices[i] = math.NaN()
		if s.Price != nil {
			prices[i] = *s.Price
			hasPrice = true
		}
	}
	if hasPrice {
		return ingest.ColPrice, prices, nil
	}

	if sales.HasColumn(ingest.ColOrderValue) && !sales.IsSynthesized(ingest.ColOrderValue) {
		for i, s := range sales.Records {
			prices[i] = s.OrderValue
		}
		return ingest.ColOrderValue, prices, nil
	}

	values, ok := a.synthetic.Fill(ingest.ColPrice, n)
	if !ok {
		return "", nil, []models.Fallback{{
			Name:   FallbackNoPrice,
			Reason: "no price or order value column and synthetic data is disabled",
			Rows:   n,
		}}
	}
	return ingest.ColPrice, values, []models.Fallback{{
		Name:   FallbackSyntheticPrice,
		Reason: "no price column; prices drawn by the synthetic data policy",
		Rows:   n,
	}}
}

func (a *ElasticityAnalyzer) Analyze(ctx context.Context, sales *models.SalesFrame) (*models.PriceSensitivityReport, error) {
	if sales == nil {
		return nil, apperrors.MissingInput("price sensitivity needs a sales file")
	}

	column, prices, fallbacks := a.priceSeries(sales)
	var x, y []float64
	for i, s := range sales.Records {
		if prices == nil {
			break
		}
		if p := prices[i]; !math.IsNaN(p) && p > 0 && s.Quantity > 0 {
			x = append(x, p)
			y = append(y, s.Quantity)
		}
	}

	report := &models.PriceSensitivityReport{
		PriceColumn: column,
		Rows:        len(x),
		BasePrice:   ml.Round(ml.Mean(x), 2),
		BaseDemand:  ml.Round(ml.Mean(y), 2),
		Fallbacks:   fallbacks,
	}
	baseDemand := ml.Mean(y)

	if len(x) < a.cfg.MinElasticityRows {
		report.Method = models.MethodClosedForm
		report.Fallbacks = append(report.Fallbacks, models.Fallback{
			Name:   FallbackClosedForm,
			Reason: fmt.Sprintf("%d usable rows, need %d for a fitted model", len(x), a.cfg.MinElasticityRows),
			Rows:   len(x),
		})
		report.Simulation = a.closedForm()
	} else {
		sim, slope, err := a.fitted(ctx, x, y)
		if err != nil {
			return nil, err
		}
		report.Method = models.MethodGradientBoosting
		report.Simulation = sim
		report.LinearSlope = slope
	}

	a.summarize(report, baseDemand)
	return report, nil
}

func (a *ElasticityAnalyzer) closedForm() []models.DiscountPoint {
	levels := a.cfg.DiscountLevels()
	out := make([]models.DiscountPoint, 0, len(levels))
	for _, d := range levels {
		priceMult := 1 - float64(d)/100
		demandMult := 1 + float64(d)*closedFormDemandSlope
		revenueMult := priceMult * demandMult
		out = append(out, models.DiscountPoint{
			DiscountPct:      d,
			DemandImpactPct:  ml.Round(demandMult*100, 2),
			RevenueImpactPct: ml.Round(revenueMult*100, 2),
			ProfitImpactPct:  ml.Round(revenueMult*100, 2),
		})
	}
	return out
}

// fitted simulates discounts with a boosted model of quantity on price.
// Impacts are relative to the model's own prediction at zero discount.
func (a *ElasticityAnalyzer) fitted(ctx context.Context, x, y []float64) ([]models.DiscountPoint, *float64, error) {
	if idx, capped := capRows(len(x), a.cfg.MaxFitRows); capped {
		sx, sy := make([]float64, len(idx)), make([]float64, len(idx))
		for i, j := range idx {
			sx[i], sy[i] = x[j], y[j]
		}
		x, y = sx, sy
	}

	basePrice := ml.Mean(x)
	var slope *float64
	if fit, ok := ml.FitLine(x, y); ok {
		s := ml.Round(fit.Slope, 6)
		slope = &s
	}

	X := make([][]float64, len(x))
	for i, v := range x {
		X[i] = []float64{v}
	}
	gbr := ml.NewGradientBoostingRegressor(100, 3, 0.1)
	if err := gbr.Fit(ctx, X, y); err != nil {
		return nil, nil, fmt.Errorf("fit elasticity model: %w", err)
	}

	predict := func(price float64) float64 {
		v, _ := gbr.Predict([]float64{price})
		return math.Max(0, v)
	}
	baseline := predict(basePrice)
	if baseline <= 0 {
		baseline = ml.Mean(y)
	}
	baseRevenue := basePrice * baseline

	levels := a.cfg.DiscountLevels()
	out := make([]models.DiscountPoint, 0, len(levels))
	for _, d := range levels {
		price := basePrice * (1 - float64(d)/100)
		demand := predict(price)
		revenue := price * demand
		profit := revenue * a.cfg.Margin

		p := models.DiscountPoint{DiscountPct: d, DemandImpactPct: 100, RevenueImpactPct: 100, ProfitImpactPct: 100}
		if baseline > 0 {
			p.DemandImpactPct = ml.Round(demand/baseline*100, 2)
		}
		if baseRevenue > 0 {
			p.RevenueImpactPct = ml.Round(revenue/baseRevenue*100, 2)
			p.ProfitImpactPct = ml.Round(profit/(baseRevenue*a.cfg.Margin)*100, 2)
		}
		out = append(out, p)
	}
	return out, slope, nil
}

func (a *ElasticityAnalyzer) summarize(report *models.PriceSensitivityReport, baseDemand float64) {
	best := report.Simulation[0]
	breakEven := noBreakEven
	for _, p := range report.Simulation {
		if p.DiscountPct == a.cfg.CurrentDiscount {
			report.CurrentDiscount = p
		}
		if p.ProfitImpactPct > best.ProfitImpactPct {
			best = p
		}
		if breakEven == noBreakEven && p.DiscountPct > 0 && p.ProfitImpactPct >= 100 {
			breakEven = fmt.Sprintf("%d%%", p.DiscountPct)
		}
	}

	report.OptimalDiscount = best.DiscountPct
	report.KeyInsight = fmt.Sprintf("Optimal discount ≈ %d%% with profit impact %.2f%%", best.DiscountPct, best.ProfitImpactPct)
	report.ProfitAnalysis = models.ProfitAnalysis{
		BaseDemandUnits:     int(baseDemand),
		ExpectedDemandUnits: int(baseDemand * report.CurrentDiscount.DemandImpactPct / 100),
		ProfitChangePct:     ml.Round(report.CurrentDiscount.ProfitImpactPct-100, 2),
		BreakEvenDiscount:   breakEven,
	}
}
