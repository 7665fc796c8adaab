package services

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
)

const (
	maxClusters = 4
	kmeansSeed  = 42

	FallbackSingleCluster = "single_cluster"
)

// ZoneColors is the map colour of each zone label.
var ZoneColors = map[string]string{
	models.ZoneHighDemandLowReturn:  "#00E676",
	models.ZoneHighDemandHighReturn: "#FF5252",
	models.ZoneLowDemandHighReturn:  "#FFB74D",
	models.ZoneStable:               "#7C4DFF",
}

// SegmentationEngine aggregates demand and returns per city and assigns
// rule-based zones. k-means cluster ids are reported alongside but do not
// drive the zone label.
type SegmentationEngine struct {
	cfg config.AnalyticsConfig
}

func NewSegmentationEngine(cfg config.AnalyticsConfig) *SegmentationEngine {
	return &SegmentationEngine{cfg: cfg}
}

// ClassifyZone splits cities into quadrants at the dataset means.
func ClassifyZone(totalSales, returnPct, salesAvg, returnAvg float64) string {
	highDemand := totalSales >= salesAvg
	highReturn := returnPct > returnAvg
	switch {
	case highDemand && !highReturn:
		return models.ZoneHighDemandLowReturn
	case highDemand && highReturn:
		return models.ZoneHighDemandHighReturn
	case highReturn:
		return models.ZoneLowDemandHighReturn
	default:
		return models.ZoneStable
	}
}

// RiskLevel bands a return percentage.
func RiskLevel(returnPct float64) string {
	switch {
	case returnPct >= 25:
		return models.RiskCritical
	case returnPct >= 12:
		return models.RiskHigh
	case returnPct >= 8:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// DemandLevel compares a city's sales to the dataset average.
func DemandLevel(totalSales, salesAvg float64) string {
	switch {
	case totalSales >= salesAvg:
		return "High"
	case totalSales >= salesAvg*0.5:
		return "Medium"
	default:
		return "Low"
	}
}

func (e *SegmentationEngine) Analyze(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame) (*models.SegmentationReport, error) {
	if returns == nil {
		return nil, apperrors.MissingInput("segmentation needs a returns file")
	}
	if sales == nil {
		return nil, apperrors.MissingInput("segmentation needs a sales file")
	}
	if !sales.HasColumn(ingest.ColCity) {
		return nil, apperrors.MissingInput("segmentation needs a city column in the sales file")
	}

	type cityAgg struct {
		sales          float64
		latSum, lonSum float64
		located        int
	}
	byCity := make(map[string]*cityAgg)
	for _, s := range sales.Records {
		agg := byCity[s.City]
		if agg == nil {
			agg = &cityAgg{}
			byCity[s.City] = agg
		}
		agg.sales += s.Quantity
		if s.Location != nil {
			agg.latSum += s.Location.Lat
			agg.lonSum += s.Location.Lon
			agg.located++
		}
	}
	returnsByCity := make(map[string]int)
	for _, r := range returns.Records {
		returnsByCity[r.City]++
	}

	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	if len(cities) == 0 {
		return nil, apperrors.InsufficientData("no cities to segment")
	}

	metrics := make([]models.CityMetrics, len(cities))
	var salesSum, returnSum float64
	for i, c := range cities {
		agg := byCity[c]
		m := models.CityMetrics{
			City:         c,
			TotalSales:   agg.sales,
			TotalReturns: returnsByCity[c],
		}
		if denom := agg.sales + float64(m.TotalReturns); denom > 0 {
			m.ReturnPct = float64(m.TotalReturns) / denom * 100
		}
		if agg.located > 0 {
			m.Location = &models.Coordinate{
				Lat: agg.latSum / float64(agg.located),
				Lon: agg.lonSum / float64(agg.located),
			}
		}
		salesSum += m.TotalSales
		returnSum += m.ReturnPct
		metrics[i] = m
	}
	salesAvg := salesSum / float64(len(metrics))
	returnAvg := returnSum / float64(len(metrics))

	report := &models.SegmentationReport{
		SalesAverage:  ml.Round(salesAvg, 2),
		ReturnAverage: ml.Round(returnAvg, 2),
		ZoneColors:    maps.Clone(ZoneColors),
	}

	k := min(maxClusters, len(metrics))
	if k >= 2 {
		points := make([][]float64, len(metrics))
		for i, m := range metrics {
			points[i] = []float64{m.TotalSales, m.ReturnPct}
		}
		res, err := ml.NewKMeans(k, kmeansSeed).Fit(points)
		if err != nil {
			return nil, fmt.Errorf("cluster cities: %w", err)
		}
		for i := range metrics {
			metrics[i].Cluster = res.Labels[i]
		}
		report.Clusters = k
	} else {
		report.Clusters = 1
		report.Fallbacks = append(report.Fallbacks, models.Fallback{
			Name:   FallbackSingleCluster,
			Reason: "fewer than two cities; clustering skipped",
			Rows:   len(metrics),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range metrics {
		m := &metrics[i]
		m.ZoneType = ClassifyZone(m.TotalSales, m.ReturnPct, salesAvg, returnAvg)
		m.ZoneColor = ZoneColors[m.ZoneType]
		m.RiskLevel = RiskLevel(m.ReturnPct)
		m.DemandLevel = DemandLevel(m.TotalSales, salesAvg)
		m.ReturnPct = ml.Round(m.ReturnPct, 2)

		switch m.ZoneType {
		case models.ZoneHighDemandLowReturn:
			report.KPIs.HighDemandClusters++
			report.KPIs.ExpansionOpportunities++
		case models.ZoneHighDemandHighReturn:
			report.KPIs.HighDemandClusters++
			report.KPIs.HighReturnZones++
		case models.ZoneLowDemandHighReturn:
			report.KPIs.HighReturnZones++
		}
	}
	report.KPIs.TotalCities = len(metrics)
	report.Cities = metrics

	risk := make([]models.CityMetrics, len(metrics))
	copy(risk, metrics)
	sort.SliceStable(risk, func(i, j int) bool { return risk[i].ReturnPct > risk[j].ReturnPct })
	for _, m := range risk {
		report.HighRiskZones = append(report.HighRiskZones, models.RiskRow{
			City:      m.City,
			RiskLevel: m.RiskLevel,
			ReturnPct: fmt.Sprintf("%.1f%%", m.ReturnPct),
			Demand:    m.DemandLevel,
		})
	}
	return report, nil
}
