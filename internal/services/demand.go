package services

import (
	"context"
	"sort"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
	"resale-insights/internal/spatial"
)

// DemandMatcher finds the K nearest sales of the same category for a
// returned item. It matches on category, unlike ViabilityScorer which needs
// the exact product.
type DemandMatcher struct {
	k      int
	recent int
}

func NewDemandMatcher(cfg config.AnalyticsConfig) *DemandMatcher {
	return &DemandMatcher{k: cfg.NeighborK, recent: cfg.RecentReturns}
}

// ClassifyDemand maps the K-window evidence to a viability tag.
func ClassifyDemand(similarSales int, avgDistanceKm float64) string {
	switch {
	case similarSales >= 5 && avgDistanceKm <= 5:
		return models.DemandHigh
	case similarSales >= 3:
		return models.DemandMedium
	default:
		return models.DemandLow
	}
}

// Match scores one return against the sales. Sales without coordinates are
// not candidates.
func (m *DemandMatcher) Match(ret models.ReturnRecord, sales []models.SaleRecord) models.MatchResult {
	res := models.MatchResult{
		ProductName: ret.ProductName,
		Category:    ret.Category,
		City:        ret.City,
		Location:    ret.Location,
		Weather:     ret.Weather,
		Evidence:    []models.SaleEvidence{},
	}

	candidates := make([]models.SaleRecord, 0)
	for _, s := range sales {
		if s.Category == ret.Category && s.Location != nil {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		res.ResaleViability = models.DemandNone
		return res
	}

	dist := make([]float64, len(candidates))
	for i, s := range candidates {
		dist[i] = spatial.HaversineKm(ret.Location.Lat, ret.Location.Lon, s.Location.Lat, s.Location.Lon)
	}
	nearest := ml.Nearest(len(candidates), m.k, func(i int) float64 { return dist[i] })

	var total float64
	for _, i := range nearest {
		s := candidates[i]
		total += dist[i]
		ev := models.SaleEvidence{
			Platform:   s.Platform,
			DistanceKm: ml.Round(dist[i], 2),
			Weather:    s.Weather,
			Quantity:   s.Quantity,
		}
		if s.HasDate() {
			ev.SaleDate = s.SaleDate.Format("2006-01-02")
		}
		res.Evidence = append(res.Evidence, ev)
	}
	res.LocalSimilarSales = len(nearest)
	res.AvgDistanceKm = ml.Round(total/float64(len(nearest)), 2)
	res.ResaleViability = ClassifyDemand(res.LocalSimilarSales, res.AvgDistanceKm)
	return res
}

// RecentReturns picks the returns shown on the demand panel: newest first
// when any return carries a date, with undated rows last, otherwise the first
// rows in file order.
func (m *DemandMatcher) RecentReturns(returns []models.ReturnRecord) []models.ReturnRecord {
	out := append([]models.ReturnRecord(nil), returns...)

	dated := false
	for _, r := range out {
		if r.HasDate() {
			dated = true
			break
		}
	}
	if dated {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.HasDate() != b.HasDate() {
				return a.HasDate()
			}
			return a.ReturnDate.After(b.ReturnDate)
		})
	}
	if len(out) > m.recent {
		out = out[:m.recent]
	}
	return out
}

func (m *DemandMatcher) Report(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame) (*models.DemandReport, error) {
	if returns == nil {
		return nil, apperrors.MissingInput("demand matching needs a returns file")
	}
	if sales == nil {
		return nil, apperrors.MissingInput("demand matching needs a sales file")
	}

	recent := m.RecentReturns(returns.Records)
	report := &models.DemandReport{
		RecentReturns: recent,
		Matches:       make([]models.MatchResult, 0, len(recent)),
	}
	for i, ret := range recent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match := m.Match(ret, sales.Records)
		match.ID = i
		report.Matches = append(report.Matches, match)
	}
	return report, nil
}
