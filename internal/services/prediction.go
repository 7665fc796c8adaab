package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/ml"
	"resale-insights/internal/models"
)

const (
	defaultTrainingPrice = 1000
	priceTooHighFactor   = 0.5
	minSellProbability   = 0.05
	maxSellProbability   = 0.95
	holdoutFraction      = 0.2
	trainingSeed         = 42

	FallbackPriceDefault  = "price_default"
	FallbackPriceMeanFill = "price_mean_fill"
	FallbackSingleClass   = "single_class_target"
	FallbackUnseenValue   = "unseen_category"
	FallbackFitRowsCapped = "fit_rows_capped"
)

var encodedColumns = []string{ingest.ColCategory, ingest.ColWeather, ingest.ColCity, ingest.ColPlatform}

// ModelSet holds the fitted viability models of one session. A nil
// *ModelSet is valid and reports ModelNotReady.
type ModelSet struct {
	cfg      config.AnalyticsConfig
	encoders map[string]*ml.LabelEncoder
	demand   *ml.LogisticRegression
	channel  *ml.KNNClassifier
	price    *ml.GradientBoostingRegressor
	summary  models.TrainingSummary
}

type trainingRow struct {
	category, weather, city, platform string
	price                             float64
	sold                              int
}

// TrainModels fits the demand classifier, the channel classifier and the
// market price regressor on one sales frame.
func TrainModels(ctx context.Context, sales *models.SalesFrame, cfg config.AnalyticsConfig, logger *slog.Logger) (*ModelSet, error) {
	if sales == nil {
		return nil, apperrors.MissingInput("model training needs a sales file")
	}
	if len(sales.Records) == 0 {
		return nil, apperrors.InsufficientData("sales file has no rows to train on")
	}
	if logger == nil {
		logger = slog.Default()
	}

	rows, fallbacks := trainingRows(sales)
	if idx, capped := capRows(len(rows), cfg.MaxFitRows); capped {
		sub := make([]trainingRow, len(idx))
		for i, j := range idx {
			sub[i] = rows[j]
		}
		fallbacks = append(fallbacks, models.Fallback{
			Name:   FallbackFitRowsCapped,
			Reason: fmt.Sprintf("training limited to %d sampled rows", cfg.MaxFitRows),
			Rows:   len(rows) - len(sub),
		})
		rows = sub
	}

	m := &ModelSet{cfg: cfg, encoders: make(map[string]*ml.LabelEncoder, len(encodedColumns))}
	values := make(map[string][]string, len(encodedColumns))
	for _, r := range rows {
		values[ingest.ColCategory] = append(values[ingest.ColCategory], r.category)
		values[ingest.ColWeather] = append(values[ingest.ColWeather], r.weather)
		values[ingest.ColCity] = append(values[ingest.ColCity], r.city)
		values[ingest.ColPlatform] = append(values[ingest.ColPlatform], r.platform)
	}
	for _, col := range encodedColumns {
		m.encoders[col] = ml.FitLabelEncoder(values[col])
	}

	X := make([][]float64, len(rows))
	priceX := make([][]float64, len(rows))
	platforms := make([]int, len(rows))
	sold := make([]int, len(rows))
	prices := make([]float64, len(rows))
	var positives int
	for i, r := range rows {
		cat, _ := m.encoders[ingest.ColCategory].Transform(r.category)
		weather, _ := m.encoders[ingest.ColWeather].Transform(r.weather)
		city, _ := m.encoders[ingest.ColCity].Transform(r.city)
		platform, _ := m.encoders[ingest.ColPlatform].Transform(r.platform)
		X[i] = []float64{float64(cat), r.price, float64(weather), float64(city)}
		priceX[i] = []float64{float64(cat), float64(weather), float64(city)}
		platforms[i] = platform
		sold[i] = r.sold
		prices[i] = r.price
		positives += r.sold
	}

	trainIdx, testIdx := ml.TrainTestSplit(len(rows), holdoutFraction, trainingSeed)
	trainX, trainY := pick(X, sold, trainIdx)
	m.demand = ml.NewLogisticRegression()
	if err := m.demand.Fit(trainX, trainY); err != nil {
		return nil, apperrors.InternalWrap(err, "fit demand classifier")
	}
	if m.demand.SingleClass() {
		fallbacks = append(fallbacks, models.Fallback{
			Name:   FallbackSingleClass,
			Reason: "every training row has the same sold label; sell probability is constant",
			Rows:   len(trainIdx),
		})
	}

	m.channel = ml.NewKNNClassifier(cfg.ChannelNeighbors)
	if err := m.channel.Fit(X, platforms); err != nil {
		return nil, apperrors.InternalWrap(err, "fit channel classifier")
	}

	m.price = ml.NewGradientBoostingRegressor(200, 3, 0.05)
	if err := m.price.Fit(ctx, priceX, prices); err != nil {
		return nil, fmt.Errorf("fit price regressor: %w", err)
	}

	var correct int
	for _, i := range testIdx {
		if p, err := m.demand.Predict(X[i]); err == nil && p == sold[i] {
			correct++
		}
	}
	accuracy := 0.0
	if len(testIdx) > 0 {
		accuracy = ml.Round(float64(correct)/float64(len(testIdx)), 4)
	}

	classes := make(map[string][]string, len(encodedColumns))
	for _, col := range encodedColumns {
		classes[col] = m.encoders[col].Classes()
	}
	m.summary = models.TrainingSummary{
		Rows:              len(rows),
		TrainRows:         len(trainIdx),
		HoldoutRows:       len(testIdx),
		HoldoutAccuracy:   accuracy,
		PositiveRows:      positives,
		NegativeRows:      len(rows) - positives,
		SingleClassTarget: m.demand.SingleClass(),
		Classes:           classes,
		Fallbacks:         fallbacks,
	}
	for _, fb := range fallbacks {
		logger.Warn("model training fallback", "fallback", fb.Name, "rows", fb.Rows, "reason", fb.Reason)
	}
	return m, nil
}

func trainingRows(sales *models.SalesFrame) ([]trainingRow, []models.Fallback) {
	var fallbacks []models.Fallback

	var observed []float64
	for _, s := range sales.Records {
		if s.Price != nil {
			observed = append(observed, *s.Price)
		}
	}
	fill := float64(defaultTrainingPrice)
	switch {
	case len(observed) == 0:
		fallbacks = append(fallbacks, models.Fallback{
			Name:   FallbackPriceDefault,
			Reason: fmt.Sprintf("no price data; every sale priced at %d", defaultTrainingPrice),
			Rows:   len(sales.Records),
		})
	case len(observed) < len(sales.Records):
		fill = ml.Mean(observed)
		fallbacks = append(fallbacks, models.Fallback{
			Name:   FallbackPriceMeanFill,
			Reason: "missing prices filled with the mean observed price",
			Rows:   len(sales.Records) - len(observed),
		})
	}

	rows := make([]trainingRow, len(sales.Records))
	for i, s := range sales.Records {
		price := fill
		if s.Price != nil {
			price = *s.Price
		}
		sold := 0
		if s.Quantity > 0 {
			sold = 1
		}
		rows[i] = trainingRow{
			category: s.Category,
			weather:  s.Weather,
			city:     s.City,
			platform: s.Platform,
			price:    price,
			sold:     sold,
		}
	}
	return rows, fallbacks
}

// capRows samples at most limit row indexes with a fixed seed. A limit of
// zero or less disables sampling.
func capRows(n, limit int) ([]int, bool) {
	if limit <= 0 || n <= limit {
		return nil, false
	}
	_, sample := ml.TrainTestSplit(n, float64(limit)/float64(n), trainingSeed)
	return sample, true
}

func pick(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for i, j := range idx {
		outX[i] = X[j]
		outY[i] = y[j]
	}
	return outX, outY
}

// Summary describes the fitted models.
func (m *ModelSet) Summary() (models.TrainingSummary, error) {
	if m == nil {
		return models.TrainingSummary{}, apperrors.ModelNotReady("models are not trained; ingest a sales file first")
	}
	return m.summary, nil
}

// AnalyzeProduct estimates how likely a product is to sell, where, and at
// what price.
func (m *ModelSet) AnalyzeProduct(q models.ProductQuery) (*models.ProductAssessment, error) {
	if m == nil {
		return nil, apperrors.ModelNotReady("models are not trained; ingest a sales file first")
	}

	title := cases.Title(language.Und)
	category := title.String(strings.TrimSpace(q.Category))
	weather := title.String(strings.TrimSpace(q.Weather))
	city := strings.TrimSpace(q.City)

	out := &models.ProductAssessment{ProductName: q.ProductName}
	encode := func(col, value string) float64 {
		enc := m.encoders[col]
		code, known := enc.Transform(value)
		if !known {
			out.Fallbacks = append(out.Fallbacks, models.Fallback{
				Name:   FallbackUnseenValue,
				Reason: fmt.Sprintf("%s %q not seen in training; encoded as %q", col, value, enc.Fallback()),
			})
		}
		return float64(code)
	}
	catCode := encode(ingest.ColCategory, category)
	weatherCode := encode(ingest.ColWeather, weather)
	cityCode := encode(ingest.ColCity, city)

	x := []float64{catCode, q.Price, weatherCode, cityCode}
	base, err := m.demand.PredictProba(x)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "predict sell probability")
	}
	appCode, err := m.channel.Predict(x)
	if err != nil {
		return nil, apperrors.InternalWrap(err, "predict channel")
	}
	market, err := m.price.Predict([]float64{catCode, weatherCode, cityCode})
	if err != nil {
		return nil, apperrors.InternalWrap(err, "predict market price")
	}

	prob := base
	out.PriceAcceptable = q.Price <= market
	if !out.PriceAcceptable {
		prob *= priceTooHighFactor
	}
	multiplier, impact := SeasonalImpact(category, weather)
	prob *= multiplier
	prob = math.Min(math.Max(prob, minSellProbability), maxSellProbability)

	marketPrice := decimal.NewFromFloat(market)
	profit := marketPrice.
		Sub(decimal.NewFromFloat(q.Price)).
		Sub(decimal.NewFromFloat(m.cfg.LogisticsCost))

	out.SellProbability = ml.Round(prob*100, 2)
	out.BaseProbability = ml.Round(base*100, 2)
	out.RecommendedApp = m.encoders[ingest.ColPlatform].Inverse(appCode)
	out.WeatherImpact = impact
	out.PredictedMarketPrice = marketPrice.StringFixed(2)
	out.EstimatedProfit = profit.StringFixed(2)
	return out, nil
}
