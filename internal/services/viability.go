package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
	"resale-insights/internal/spatial"
)

// Reasons attached to viability decisions.
const (
	ReasonNoHistory      = "No instant-delivery sales history"
	ReasonNoNearby       = "No nearby demand within radius"
	ReasonLowVolume      = "Insufficient demand volume"
	ReasonLowConfidence  = "Low confidence after demand & distance evaluation"
	ReasonModerateDemand = "Moderate demand near return location"
	ReasonStrongDemand   = "Strong nearby demand with platform dominance"

	unknownPlatform = "Unknown"
	unknownCity     = "Unknown"
)

// ViabilityScorer decides whether a return can be resold near where it came
// back, using sales of the exact same product within a fixed radius.
type ViabilityScorer struct {
	cfg config.AnalyticsConfig
}

func NewViabilityScorer(cfg config.AnalyticsConfig) *ViabilityScorer {
	return &ViabilityScorer{cfg: cfg}
}

// Confidence blends distance, volume and platform strength into 0..100.
func (s *ViabilityScorer) Confidence(avgDistanceKm, totalQty float64, platform string) int {
	distanceScore := math.Max(0, (s.cfg.MaxDistanceKm-avgDistanceKm)/s.cfg.MaxDistanceKm)
	demandScore := math.Min(1, totalQty/s.cfg.DemandSaturation)
	platformScore := s.cfg.PlatformWeight(platform)

	c := math.Round(100 * (0.5*distanceScore + 0.3*demandScore + 0.2*platformScore))
	return int(math.Max(0, math.Min(100, c)))
}

// Band maps a confidence to its decision and reason.
func (s *ViabilityScorer) Band(confidence int) (models.Decision, string) {
	switch {
	case confidence >= s.cfg.YesThreshold:
		return models.DecisionYes, ReasonStrongDemand
	case confidence >= s.cfg.MaybeThreshold:
		return models.DecisionMaybe, ReasonModerateDemand
	default:
		return models.DecisionNo, ReasonLowConfidence
	}
}

func (s *ViabilityScorer) Score(ret models.ReturnRecord, sales []models.SaleRecord) models.ViabilityDecision {
	d := models.ViabilityDecision{
		OrderID:      ret.OrderID,
		Product:      ret.ProductName,
		City:         ret.City,
		Location:     ret.Location,
		Decision:     models.DecisionNo,
		BestPlatform: unknownPlatform,
	}
	if d.City == "" {
		d.City = unknownCity
	}

	matched := false
	var total, distSum float64
	var nearby int
	byPlatform := make(map[string]float64)
	for _, sale := range sales {
		if sale.ProductName != ret.ProductName || sale.Location == nil {
			continue
		}
		matched = true
		dist := spatial.HaversineKm(ret.Location.Lat, ret.Location.Lon, sale.Location.Lat, sale.Location.Lon)
		if dist > s.cfg.MaxDistanceKm {
			continue
		}
		nearby++
		distSum += dist
		total += sale.Quantity
		byPlatform[sale.Platform] += sale.Quantity
	}

	switch {
	case !matched:
		d.Reason = ReasonNoHistory
		return d
	case nearby == 0:
		d.Reason = ReasonNoNearby
		return d
	}

	d.NearbySales = nearby
	d.TotalQuantity = total
	d.AvgDistanceKm = ml.Round(distSum/float64(nearby), 2)
	d.BestPlatform = bestPlatform(byPlatform)
	if total < s.cfg.MinTotalQty {
		d.Reason = ReasonLowVolume
		return d
	}

	d.Confidence = s.Confidence(distSum/float64(nearby), total, d.BestPlatform)
	d.Decision, d.Reason = s.Band(d.Confidence)
	return d
}

// bestPlatform returns the platform with the highest quantity. Ties go to the
// alphabetically first platform.
func bestPlatform(byPlatform map[string]float64) string {
	names := make([]string, 0, len(byPlatform))
	for p := range byPlatform {
		names = append(names, p)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return unknownPlatform
	}
	best := names[0]
	for _, p := range names[1:] {
		if byPlatform[p] > byPlatform[best] {
			best = p
		}
	}
	return best
}

// Report scores every return and aggregates decisions per city. YES and
// MAYBE count as resellable sales, NO as returns.
func (s *ViabilityScorer) Report(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame) (*models.ViabilityReport, error) {
	if returns == nil {
		return nil, apperrors.MissingInput("viability scoring needs a returns file")
	}
	if sales == nil {
		return nil, apperrors.MissingInput("viability scoring needs a sales file")
	}

	report := &models.ViabilityReport{
		Decisions: make([]models.ViabilityDecision, 0, len(returns.Records)),
		MapPoints: make([]models.MapPoint, 0, len(returns.Records)),
		Counts:    map[models.Decision]int{models.DecisionYes: 0, models.DecisionMaybe: 0, models.DecisionNo: 0},
	}
	tallies := make(map[string]*models.RegionalTally)

	for i, ret := range returns.Records {
		if i%128 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		d := s.Score(ret, sales.Records)
		if d.OrderID == "" {
			d.OrderID = fmt.Sprintf("RET-%d", i+1)
		}
		report.Decisions = append(report.Decisions, d)
		report.Counts[d.Decision]++
		report.MapPoints = append(report.MapPoints, models.MapPoint{
			Lat:        d.Location.Lat,
			Lon:        d.Location.Lon,
			Decision:   d.Decision,
			Confidence: d.Confidence,
			Product:    d.Product,
			City:       d.City,
			Platform:   d.BestPlatform,
		})

		t := tallies[d.City]
		if t == nil {
			t = &models.RegionalTally{City: d.City}
			tallies[d.City] = t
		}
		if d.Decision == models.DecisionNo {
			t.Returns++
		} else {
			t.Sales++
		}
	}

	report.RegionalSummary = make([]models.RegionalTally, 0, len(tallies))
	for _, t := range tallies {
		report.RegionalSummary = append(report.RegionalSummary, *t)
	}
	sort.Slice(report.RegionalSummary, func(i, j int) bool {
		return report.RegionalSummary[i].City < report.RegionalSummary[j].City
	})
	return report, nil
}
