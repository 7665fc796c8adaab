package services

import (
	"math"
	"time"

	"resale-insights/internal/config"
	"resale-insights/internal/ingest"
	"resale-insights/internal/models"
	"resale-insights/internal/spatial"
)

func testConfig() config.AnalyticsConfig {
	return config.DefaultAnalytics()
}

// offsetNorth returns the latitude reached by moving km due north of lat.
func offsetNorth(lat, km float64) float64 {
	return lat + km/spatial.EarthRadiusKm*180/math.Pi
}

func sale(product, category, platform string, lat, lon, qty float64) models.SaleRecord {
	return models.SaleRecord{
		ProductName: product,
		Category:    category,
		Platform:    platform,
		Location:    &models.Coordinate{Lat: lat, Lon: lon},
		Quantity:    qty,
		Weather:     "Summer",
	}
}

func salesFrame(records []models.SaleRecord, columns ...string) *models.SalesFrame {
	cols := map[string]bool{ingest.ColProductName: true, ingest.ColPlatform: true}
	for _, c := range columns {
		cols[c] = true
	}
	return &models.SalesFrame{Records: records, Columns: cols, InputRows: len(records)}
}

func returnsFrame(records []models.ReturnRecord) *models.ReturnsFrame {
	return &models.ReturnsFrame{
		Records: records,
		Columns: map[string]bool{
			ingest.ColProductName: true,
			ingest.ColCategory:    true,
			ingest.ColCity:        true,
			ingest.ColReturnLat:   true,
			ingest.ColReturnLon:   true,
		},
		Attrition: models.Attrition{InputRows: len(records), KeptRows: len(records)},
	}
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 10, 0, 0, 0, 0, time.UTC)
}
