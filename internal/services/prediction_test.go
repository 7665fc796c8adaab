package services

import (
	"context"
	"testing"

	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/models"
	"resale-insights/internal/observability"
)

func trainingFrame(soldAll bool) *models.SalesFrame {
	categories := []string{"Fan", "Heater", "Electronics"}
	weathers := []string{"Summer", "Winter", "Rainy"}
	cities := []string{"Delhi", "Mumbai"}
	platforms := []string{"Blinkit", "Zepto", "Swiggy Instamart"}

	var records []models.SaleRecord
	for i := range 40 {
		qty := float64(i % 3)
		if soldAll {
			qty++
		}
		price := 200 + float64(i%5)*150
		records = append(records, models.SaleRecord{
			ProductName: "P",
			Category:    categories[i%len(categories)],
			Weather:     weathers[(i/3)%len(weathers)],
			City:        cities[i%len(cities)],
			Platform:    platforms[(i/2)%len(platforms)],
			Quantity:    qty,
			Price:       models.Float(price),
		})
	}
	return salesFrame(records, ingest.ColCategory, ingest.ColCity, ingest.ColPrice, ingest.ColQty, ingest.ColWeather)
}

func hasFallback(fbs []models.Fallback, name string) bool {
	for _, fb := range fbs {
		if fb.Name == name {
			return true
		}
	}
	return false
}

func TestTrainModels_Summary(t *testing.T) {
	set, err := TrainModels(context.Background(), trainingFrame(false), testConfig(), observability.Discard())
	if err != nil {
		t.Fatalf("TrainModels() error = %v", err)
	}
	summary, err := set.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Rows != 40 || summary.TrainRows+summary.HoldoutRows != 40 {
		t.Errorf("unexpected row split %+v", summary)
	}
	if summary.HoldoutRows != 8 {
		t.Errorf("expected 20%% holdout of 8 rows, got %d", summary.HoldoutRows)
	}
	if summary.SingleClassTarget {
		t.Error("mixed target should not be single class")
	}
	if got := summary.Classes[ingest.ColCategory]; len(got) != 3 || got[0] != "Electronics" {
		t.Errorf("expected sorted category classes, got %v", got)
	}
	if summary.HoldoutAccuracy < 0 || summary.HoldoutAccuracy > 1 {
		t.Errorf("accuracy out of range: %v", summary.HoldoutAccuracy)
	}
}

func TestModelSet_AnalyzeProduct(t *testing.T) {
	set, err := TrainModels(context.Background(), trainingFrame(false), testConfig(), observability.Discard())
	if err != nil {
		t.Fatalf("TrainModels() error = %v", err)
	}

	queries := []models.ProductQuery{
		{ProductName: "Desk Fan", Category: "fan", Price: 300, Weather: "summer", City: "Delhi"},
		{ProductName: "Room Heater", Category: "Heater", Price: 5000, Weather: "Summer", City: "Mumbai"},
		{ProductName: "Phone", Category: "Electronics", Price: 1, Weather: "Rainy", City: "Delhi"},
	}
	for _, q := range queries {
		got, err := set.AnalyzeProduct(q)
		if err != nil {
			t.Fatalf("AnalyzeProduct(%s) error = %v", q.ProductName, err)
		}
		if got.SellProbability < 5 || got.SellProbability > 95 {
			t.Errorf("%s: sell probability %v outside [5, 95]", q.ProductName, got.SellProbability)
		}
		if got.RecommendedApp == "" {
			t.Errorf("%s: expected a recommended app", q.ProductName)
		}
		if len(got.Fallbacks) != 0 {
			t.Errorf("%s: unexpected fallbacks %+v", q.ProductName, got.Fallbacks)
		}
	}

	fan, _ := set.AnalyzeProduct(queries[0])
	if fan.WeatherImpact != models.WeatherSignificant {
		t.Errorf("expected fan in summer to be significant, got %q", fan.WeatherImpact)
	}
	heater, _ := set.AnalyzeProduct(queries[1])
	if heater.PriceAcceptable {
		t.Error("expected a price far above market to be unacceptable")
	}
	if heater.WeatherImpact != models.WeatherNotSignificant {
		t.Errorf("expected heater in summer to be not significant, got %q", heater.WeatherImpact)
	}
}

func TestModelSet_UnseenCategory(t *testing.T) {
	set, err := TrainModels(context.Background(), trainingFrame(false), testConfig(), observability.Discard())
	if err != nil {
		t.Fatalf("TrainModels() error = %v", err)
	}
	got, err := set.AnalyzeProduct(models.ProductQuery{ProductName: "Kite", Category: "Toys", Price: 100, Weather: "Summer", City: "Delhi"})
	if err != nil {
		t.Fatalf("AnalyzeProduct() error = %v", err)
	}
	if !hasFallback(got.Fallbacks, FallbackUnseenValue) {
		t.Errorf("expected %s fallback, got %+v", FallbackUnseenValue, got.Fallbacks)
	}
	if got.WeatherImpact != models.WeatherNeutral {
		t.Errorf("expected neutral impact for unknown category, got %q", got.WeatherImpact)
	}
}

func TestTrainModels_SingleClassTarget(t *testing.T) {
	set, err := TrainModels(context.Background(), trainingFrame(true), testConfig(), observability.Discard())
	if err != nil {
		t.Fatalf("TrainModels() error = %v", err)
	}
	summary, _ := set.Summary()
	if !summary.SingleClassTarget || !hasFallback(summary.Fallbacks, FallbackSingleClass) {
		t.Errorf("expected single class flag and fallback, got %+v", summary)
	}

	got, err := set.AnalyzeProduct(models.ProductQuery{ProductName: "Fan", Category: "Fan", Price: 300, Weather: "Winter", City: "Delhi"})
	if err != nil {
		t.Fatal(err)
	}
	if got.SellProbability < 5 || got.SellProbability > 95 {
		t.Errorf("sell probability %v outside [5, 95]", got.SellProbability)
	}
}

func TestTrainModels_PriceFallbacks(t *testing.T) {
	noPrice := trainingFrame(false)
	for i := range noPrice.Records {
		noPrice.Records[i].Price = nil
	}
	set, err := TrainModels(context.Background(), noPrice, testConfig(), observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	summary, _ := set.Summary()
	if !hasFallback(summary.Fallbacks, FallbackPriceDefault) {
		t.Errorf("expected %s, got %+v", FallbackPriceDefault, summary.Fallbacks)
	}

	partial := trainingFrame(false)
	partial.Records[0].Price = nil
	set, err = TrainModels(context.Background(), partial, testConfig(), observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	summary, _ = set.Summary()
	if !hasFallback(summary.Fallbacks, FallbackPriceMeanFill) {
		t.Errorf("expected %s, got %+v", FallbackPriceMeanFill, summary.Fallbacks)
	}
}

func TestTrainModels_FitRowsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFitRows = 20
	set, err := TrainModels(context.Background(), trainingFrame(false), cfg, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	summary, _ := set.Summary()
	if summary.Rows != 20 || !hasFallback(summary.Fallbacks, FallbackFitRowsCapped) {
		t.Errorf("expected 20 sampled rows with fallback, got %+v", summary)
	}
}

func TestTrainModels_ChannelNeighborsIndependentOfMatchWindow(t *testing.T) {
	cfg := testConfig()
	cfg.NeighborK = 1
	set, err := TrainModels(context.Background(), trainingFrame(false), cfg, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if set.channel.K != 5 {
		t.Errorf("channel classifier k = %d, want 5 regardless of the match window", set.channel.K)
	}

	cfg.ChannelNeighbors = 3
	set, err = TrainModels(context.Background(), trainingFrame(false), cfg, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if set.channel.K != 3 {
		t.Errorf("channel classifier k = %d, want 3", set.channel.K)
	}
}

func TestModelSet_NotReady(t *testing.T) {
	var set *ModelSet
	if _, err := set.AnalyzeProduct(models.ProductQuery{ProductName: "x"}); !apperrors.HasCode(err, apperrors.CodeModelNotReady) {
		t.Errorf("expected MODEL_NOT_READY, got %v", err)
	}
	if _, err := set.Summary(); !apperrors.HasCode(err, apperrors.CodeModelNotReady) {
		t.Errorf("expected MODEL_NOT_READY, got %v", err)
	}
}

func TestTrainModels_Errors(t *testing.T) {
	if _, err := TrainModels(context.Background(), nil, testConfig(), nil); !apperrors.HasCode(err, apperrors.CodeMissingInput) {
		t.Errorf("expected MISSING_INPUT, got %v", err)
	}
	if _, err := TrainModels(context.Background(), salesFrame(nil), testConfig(), nil); !apperrors.HasCode(err, apperrors.CodeInsufficient) {
		t.Errorf("expected INSUFFICIENT_DATA, got %v", err)
	}
}

func TestSeasonalImpact(t *testing.T) {
	tests := []struct {
		category, weather string
		mult              float64
		label             string
	}{
		{"Fan", "Summer", 1.15, models.WeatherSignificant},
		{"Umbrella", "Summer", 0.7, models.WeatherNotSignificant},
		{"Tea", "rainy", 1.15, models.WeatherSignificant},
		{"Books", "Winter", 1, models.WeatherNeutral},
	}
	for _, tt := range tests {
		mult, label := SeasonalImpact(tt.category, tt.weather)
		if mult != tt.mult || label != tt.label {
			t.Errorf("SeasonalImpact(%q, %q) = %v, %q", tt.category, tt.weather, mult, label)
		}
	}
}
