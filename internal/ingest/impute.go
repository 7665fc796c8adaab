package ingest

import (
	"sort"

	"golang.org/x/text/cases"

	"resale-insights/internal/models"
)

// imputeView points into one record so returns and sales share the
// imputation code.
type imputeView struct {
	brand   *string
	weather *string
	price   **float64
	qty     *float64
}

// imputeWeather title-cases observed weather and fills missing cells with the
// weather carrying the highest summed quantity for the row's brand. Ties go
// to the alphabetically first weather. Rows whose brand has no observed
// weather get UnknownWeather.
func imputeWeather(rows []imputeView, title cases.Caser) []models.Fallback {
	totals := make(map[string]map[string]float64)
	for _, r := range rows {
		if isMissingText(*r.weather) {
			*r.weather = ""
			continue
		}
		*r.weather = title.String(*r.weather)
		if *r.brand == "" {
			continue
		}
		if totals[*r.brand] == nil {
			totals[*r.brand] = make(map[string]float64)
		}
		qty := 1.0
		if r.qty != nil {
			qty = *r.qty
		}
		totals[*r.brand][*r.weather] += qty
	}

	modes := make(map[string]string, len(totals))
	for brand, byWeather := range totals {
		names := make([]string, 0, len(byWeather))
		for w := range byWeather {
			names = append(names, w)
		}
		sort.Strings(names)
		best := names[0]
		for _, w := range names[1:] {
			if byWeather[w] > byWeather[best] {
				best = w
			}
		}
		modes[brand] = best
	}

	var imputed, unknown int
	for _, r := range rows {
		if *r.weather != "" {
			continue
		}
		if w, ok := modes[*r.brand]; ok {
			*r.weather = w
			imputed++
			continue
		}
		*r.weather = UnknownWeather
		unknown++
	}

	var out []models.Fallback
	if imputed > 0 {
		out = append(out, models.Fallback{
			Name:   FallbackWeatherImputed,
			Reason: "missing weather filled with the brand's highest-volume weather",
			Rows:   imputed,
		})
	}
	if unknown > 0 {
		out = append(out, models.Fallback{
			Name:   FallbackWeatherUnknown,
			Reason: "missing weather with no brand history",
			Rows:   unknown,
		})
	}
	return out
}

// backfillPrice fills missing prices from the first observed price/quantity
// ratio of the row's brand, scaled by the row's quantity. Rows without a
// quantity or a brand ratio stay missing.
func backfillPrice(rows []imputeView) (models.Fallback, bool) {
	unit := make(map[string]float64)
	for _, r := range rows {
		if *r.price == nil || r.qty == nil || *r.qty == 0 || *r.brand == "" {
			continue
		}
		if _, ok := unit[*r.brand]; !ok {
			unit[*r.brand] = **r.price / *r.qty
		}
	}

	var filled int
	for _, r := range rows {
		if *r.price != nil || r.qty == nil {
			continue
		}
		ratio, ok := unit[*r.brand]
		if !ok {
			continue
		}
		price := ratio * *r.qty
		*r.price = &price
		filled++
	}
	if filled == 0 {
		return models.Fallback{}, false
	}
	return models.Fallback{
		Name:   FallbackPriceBackfill,
		Reason: "missing price rebuilt from the brand's unit price",
		Rows:   filled,
	}, true
}
