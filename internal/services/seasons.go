package services

import (
	"strings"

	"resale-insights/internal/models"
)

const (
	seasonSummer = "Summer"
	seasonWinter = "Winter"
	seasonRainy  = "Rainy"

	seasonalBoost   = 1.15
	seasonalPenalty = 0.7
)

var allSeasons = []string{seasonSummer, seasonWinter, seasonRainy}

// seasonalCategories lists the weather each category sells best in. Keys are
// lower case.
var seasonalCategories = map[string][]string{
	"air conditioner": {seasonSummer},
	"cooler":          {seasonSummer},
	"fan":             {seasonSummer},
	"water cooler":    {seasonSummer},
	"refrigerator":    {seasonSummer},
	"ice cream":       {seasonSummer},
	"cold drink":      {seasonSummer},
	"juice":           {seasonSummer},
	"soft drink":      {seasonSummer},
	"sunscreen":       {seasonSummer},
	"cotton clothes":  {seasonSummer},
	"t-shirt":         {seasonSummer},
	"shorts":          {seasonSummer},
	"cap":             {seasonSummer},

	"heater":       {seasonWinter},
	"room heater":  {seasonWinter},
	"geyser":       {seasonWinter},
	"blanket":      {seasonWinter},
	"quilt":        {seasonWinter},
	"jacket":       {seasonWinter},
	"sweater":      {seasonWinter},
	"hoodie":       {seasonWinter},
	"thermal wear": {seasonWinter},
	"gloves":       {seasonWinter},

	"raincoat":           {seasonRainy},
	"umbrella":           {seasonRainy},
	"rain shoes":         {seasonRainy},
	"waterproof jacket":  {seasonRainy},
	"mosquito repellent": {seasonRainy},
	"insect killer":      {seasonRainy},

	"tea":             {seasonWinter, seasonRainy},
	"coffee":          {seasonWinter, seasonRainy},
	"soup":            {seasonWinter, seasonRainy},
	"instant noodles": {seasonWinter, seasonRainy},
	"snacks":          {seasonRainy, seasonWinter},

	"electronics":  allSeasons,
	"smart watch":  allSeasons,
	"mobile phone": allSeasons,
	"headphones":   allSeasons,
}

// SeasonalImpact returns the probability multiplier for selling category in
// weather and the impact label. Categories outside the table are neutral.
func SeasonalImpact(category, weather string) (float64, string) {
	seasons, ok := seasonalCategories[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		return 1, models.WeatherNeutral
	}
	for _, s := range seasons {
		if strings.EqualFold(s, strings.TrimSpace(weather)) {
			return seasonalBoost, models.WeatherSignificant
		}
	}
	return seasonalPenalty, models.WeatherNotSignificant
}
