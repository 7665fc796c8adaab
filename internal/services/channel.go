package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
)

const noChannel = "N/A"

// ChannelAnalyzer compares delivery platforms on net revenue and service
// metrics.
type ChannelAnalyzer struct{}

func NewChannelAnalyzer() *ChannelAnalyzer { return &ChannelAnalyzer{} }

// Analyze needs order values and commission rates, read or synthesized.
// Returns are optional and only feed the header count.
func (c *ChannelAnalyzer) Analyze(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame) (*models.ChannelReport, error) {
	if sales == nil {
		return nil, apperrors.MissingInput("channel analysis needs a sales file")
	}
	for _, col := range []string{ingest.ColOrderValue, ingest.ColCommission} {
		if !sales.HasColumn(col) && !sales.IsSynthesized(col) {
			return nil, apperrors.MissingInput("channel analysis needs order value and commission rate columns").WithDetails(col)
		}
	}

	type platformAgg struct {
		revenue                                decimal.Decimal
		delivery, conversion, returnRate, rate float64
		n                                      int
	}
	byPlatform := make(map[string]*platformAgg)
	trend := make(map[[2]string]decimal.Decimal)
	var commissionSum, returnRateSum float64
	total := decimal.Zero

	for i, s := range sales.Records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		revenue := decimal.NewFromFloat(s.OrderValue).Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.CommissionRate)))
		agg := byPlatform[s.Platform]
		if agg == nil {
			agg = &platformAgg{}
			byPlatform[s.Platform] = agg
		}
		agg.revenue = agg.revenue.Add(revenue)
		agg.delivery += s.DeliveryTime
		agg.conversion += s.ConversionRate
		agg.returnRate += s.ReturnRate
		agg.rate += s.Rating
		agg.n++

		if s.HasDate() {
			key := [2]string{s.Month().Format("2006-01"), s.Platform}
			trend[key] = trend[key].Add(revenue)
		}
		commissionSum += s.CommissionRate
		returnRateSum += s.ReturnRate
		total = total.Add(revenue)
	}

	platforms := make([]string, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	report := &models.ChannelReport{
		Header: models.ChannelHeader{
			TotalRevenue: total.Round(2).InexactFloat64(),
			TopChannel:   noChannel,
		},
		SynthesizedColumns: append([]string(nil), sales.Synthesized...),
	}
	if returns != nil {
		report.Header.TotalReturns = len(returns.Records)
	}
	if n := len(sales.Records); n > 0 {
		report.Header.AvgCommissionPct = ml.Round(commissionSum/float64(n)*100, 2)
		report.Header.ReturnRatePct = ml.Round(returnRateSum/float64(n)*100, 2)
	}

	var best decimal.Decimal
	for i, p := range platforms {
		agg := byPlatform[p]
		if i == 0 || agg.revenue.GreaterThan(best) {
			best = agg.revenue
			report.Header.TopChannel = p
		}
		share := 0.0
		if total.IsPositive() {
			share = agg.revenue.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		report.MarketShare = append(report.MarketShare, models.MarketShare{Platform: p, SharePct: share})

		n := float64(agg.n)
		report.Platforms = append(report.Platforms, models.PlatformMetrics{
			Platform:         p,
			DeliverySpeedMin: ml.Round(agg.delivery/n, 0),
			ConversionPct:    ml.Round(agg.conversion/n*100, 2),
			ReturnRatePct:    ml.Round(agg.returnRate/n*100, 2),
			Rating:           ml.Round(agg.rate/n, 1),
		})
	}

	keys := make([][2]string, 0, len(trend))
	for k := range trend {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		report.RevenueTrend = append(report.RevenueTrend, models.ChannelRevenue{
			Month:    k[0],
			Platform: k[1],
			Revenue:  trend[k].Round(2).InexactFloat64(),
		})
	}
	return report, nil
}
