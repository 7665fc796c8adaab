package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"resale-insights/internal/config"
	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/ingest"
	"resale-insights/internal/models"
	"resale-insights/internal/observability"
)

// Analyzer names used in reports, spans and metrics.
const (
	AnalyzerModels           = "models"
	AnalyzerDemand           = "demand"
	AnalyzerViability        = "viability"
	AnalyzerPriceSensitivity = "price_sensitivity"
	AnalyzerLifecycle        = "lifecycle"
	AnalyzerSegmentation     = "segmentation"
	AnalyzerChannels         = "channels"

	ingestReturns = "ingest.returns"
	ingestSales   = "ingest.sales"
)

// Analytics is one analysis session: the most recently ingested frames, the
// models trained on them and the report they produced. Every ingestion
// replaces all three together.
type Analytics struct {
	mu      sync.RWMutex
	returns *models.ReturnsFrame
	sales   *models.SalesFrame
	models  *ModelSet
	report  *models.Report

	cfg     config.AnalyticsConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	recordsProcessed atomic.Int64
	runs             atomic.Int64

	demand       *DemandMatcher
	scorer       *ViabilityScorer
	elasticity   *ElasticityAnalyzer
	lifecycle    *LifecycleAnalyzer
	segmentation *SegmentationEngine
	channels     *ChannelAnalyzer
}

func NewAnalytics(cfg config.AnalyticsConfig, logger *slog.Logger, metrics *observability.Metrics) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Analytics{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		demand:       NewDemandMatcher(cfg),
		scorer:       NewViabilityScorer(cfg),
		elasticity:   NewElasticityAnalyzer(cfg, synthetic(cfg)),
		lifecycle:    NewLifecycleAnalyzer(cfg),
		segmentation: NewSegmentationEngine(cfg),
		channels:     NewChannelAnalyzer(),
	}
}

func synthetic(cfg config.AnalyticsConfig) ingest.SyntheticPolicy {
	return ingest.SyntheticPolicy{Enabled: cfg.Synthetic.Enabled, Seed: uint64(cfg.Synthetic.Seed)}
}

// LoadFromCSV ingests the files at the given paths. An empty path means the
// file is not provided.
func (a *Analytics) LoadFromCSV(ctx context.Context, returnsPath, salesPath string) (*models.Report, error) {
	var returns, sales io.Reader
	if returnsPath != "" {
		f, err := os.Open(returnsPath)
		if err != nil {
			return nil, fmt.Errorf("open returns file: %w", err)
		}
		defer f.Close()
		returns = f
	}
	if salesPath != "" {
		f, err := os.Open(salesPath)
		if err != nil {
			return nil, fmt.Errorf("open sales file: %w", err)
		}
		defer f.Close()
		sales = f
	}

	a.logger.Info("loading csv files", "returns", returnsPath, "sales", salesPath)
	return a.Ingest(ctx, returns, sales)
}

// Ingest normalizes the uploaded files and runs every analyzer on them. A
// file that is nil or fails normalization with a missing-input error is
// recorded as a failure; analyzers needing it fail the same way while the
// rest still run.
func (a *Analytics) Ingest(ctx context.Context, returns, sales io.Reader) (*models.Report, error) {
	ctx, span := observability.StartSpan(ctx, "ingest")
	defer func() {
		span.Finish()
		a.logger.Debug("span finished", "span", span)
	}()

	opts := ingest.Options{
		Workers:   max(a.cfg.Workers, 2),
		Synthetic: synthetic(a.cfg),
		Logger:    a.logger,
	}
	failures := make(map[string]models.AnalyzerFailure)

	var returnsFrame *models.ReturnsFrame
	if returns != nil {
		frame, err := ingest.NormalizeReturns(ctx, returns, opts)
		if err != nil && !recoverable(err) {
			span.SetError(err)
			return nil, err
		}
		if err != nil {
			failures[ingestReturns] = failureOf(err)
		}
		returnsFrame = frame
	}

	var salesFrame *models.SalesFrame
	if sales != nil {
		frame, err := ingest.NormalizeSales(ctx, sales, opts)
		if err != nil && !recoverable(err) {
			span.SetError(err)
			return nil, err
		}
		if err != nil {
			failures[ingestSales] = failureOf(err)
		}
		salesFrame = frame
	}

	if returnsFrame == nil && salesFrame == nil {
		err := apperrors.MissingInput("no usable returns or sales file")
		if len(failures) > 0 {
			err = err.WithDetails(joinFailures(failures))
		}
		span.SetError(err)
		return nil, err
	}

	return a.analyze(ctx, returnsFrame, salesFrame, failures)
}

// SetFrames runs the analyzers on already normalized frames.
func (a *Analytics) SetFrames(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame) (*models.Report, error) {
	return a.analyze(ctx, returns, sales, map[string]models.AnalyzerFailure{})
}

func (a *Analytics) analyze(ctx context.Context, returns *models.ReturnsFrame, sales *models.SalesFrame, failures map[string]models.AnalyzerFailure) (*models.Report, error) {
	start := time.Now()
	report := &models.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: start.UTC(),
		Fallbacks:   make(map[string][]models.Fallback),
		Failures:    failures,
	}
	if returns != nil {
		report.ReturnsRows = len(returns.Records)
		attrition := returns.Attrition
		report.Attrition = &attrition
		a.recordFallbacks(report, "returns", returns.Fallbacks)
		a.metrics.RowsIngested("returns", attrition.KeptRows)
		a.metrics.RowsDropped("returns", "missing_coordinates", attrition.MissingCoordinates)
		a.metrics.RowsDropped("returns", "invalid_coordinates", attrition.InvalidCoordinates)
		a.metrics.RowsDropped("returns", "duplicate_coordinates", attrition.DuplicateCoordinates)
	}
	if sales != nil {
		report.SalesRows = len(sales.Records)
		report.Synthesized = append([]string(nil), sales.Synthesized...)
		a.recordFallbacks(report, "sales", sales.Fallbacks)
		a.metrics.RowsIngested("sales", len(sales.Records))
	}

	modelSet := a.train(ctx, sales, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	fail := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures[name] = failureOf(err)
	}
	fallbacks := func(name string, fbs []models.Fallback) {
		mu.Lock()
		defer mu.Unlock()
		a.recordFallbacks(report, name, fbs)
	}

	runs := []struct {
		name string
		run  func(ctx context.Context, r *models.ReturnsFrame, s *models.SalesFrame) error
	}{
		{AnalyzerDemand, func(ctx context.Context, r *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.demand.Report(ctx, r, s)
			report.Demand = res
			return err
		}},
		{AnalyzerViability, func(ctx context.Context, r *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.scorer.Report(ctx, r, s)
			report.Viability = res
			return err
		}},
		{AnalyzerPriceSensitivity, func(ctx context.Context, _ *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.elasticity.Analyze(ctx, s)
			if res != nil {
				fallbacks(AnalyzerPriceSensitivity, res.Fallbacks)
			}
			report.PriceSensitivity = res
			return err
		}},
		{AnalyzerLifecycle, func(ctx context.Context, _ *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.lifecycle.Analyze(ctx, s)
			if res != nil {
				fallbacks(AnalyzerLifecycle, res.Fallbacks)
			}
			report.Lifecycle = res
			return err
		}},
		{AnalyzerSegmentation, func(ctx context.Context, r *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.segmentation.Analyze(ctx, r, s)
			if res != nil {
				fallbacks(AnalyzerSegmentation, res.Fallbacks)
			}
			report.Segmentation = res
			return err
		}},
		{AnalyzerChannels, func(ctx context.Context, r *models.ReturnsFrame, s *models.SalesFrame) error {
			res, err := a.channels.Analyze(ctx, r, s)
			report.Channels = res
			return err
		}},
	}

	var wg errgroup.Group
	wg.SetLimit(max(1, a.cfg.Workers))
	for _, an := range runs {
		wg.Go(func() error {
			spanCtx, span := observability.StartSpan(ctx, "analyzer."+an.name)
			err := an.run(spanCtx, returns.Clone(), sales.Clone())
			d := span.Finish()
			a.metrics.AnalyzerRun(an.name, d)
			if err != nil {
				span.SetError(err)
				fail(an.name, err)
				a.metrics.AnalyzerFailed(an.name, failureOf(err).Code)
				a.logger.Warn("analyzer failed", "analyzer", an.name, "error", err, "span", span)
				return nil
			}
			a.logger.Debug("analyzer finished", "analyzer", an.name, "duration", d)
			return nil
		})
	}
	// Analyzer errors are recorded, never returned, so Wait only syncs.
	_ = wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)

	a.mu.Lock()
	a.returns = returns
	a.sales = sales
	a.models = modelSet
	a.report = report
	a.mu.Unlock()

	a.recordsProcessed.Store(int64(report.ReturnsRows + report.SalesRows))
	a.runs.Add(1)
	a.metrics.Ingested()
	a.logger.Info("analysis complete",
		"run_id", report.RunID,
		"returns", report.ReturnsRows,
		"sales", report.SalesRows,
		"failures", len(report.Failures),
		"duration", report.Duration)
	return report, nil
}

func (a *Analytics) train(ctx context.Context, sales *models.SalesFrame, report *models.Report) *ModelSet {
	ctx, span := observability.StartSpan(ctx, "analyzer."+AnalyzerModels)
	defer span.Finish()

	start := time.Now()
	set, err := TrainModels(ctx, sales.Clone(), a.cfg, a.logger)
	a.metrics.Training(time.Since(start))
	if err != nil {
		span.SetError(err)
		report.Failures[AnalyzerModels] = failureOf(err)
		a.metrics.AnalyzerFailed(AnalyzerModels, failureOf(err).Code)
		a.logger.Warn("model training failed", "error", err)
		return nil
	}
	summary, _ := set.Summary()
	report.Training = &summary
	a.recordFallbacks(report, AnalyzerModels, summary.Fallbacks)
	return set
}

func (a *Analytics) recordFallbacks(report *models.Report, component string, fbs []models.Fallback) {
	if len(fbs) == 0 {
		return
	}
	report.Fallbacks[component] = append(report.Fallbacks[component], fbs...)
	for _, fb := range fbs {
		a.metrics.Fallback(component, fb.Name)
	}
}

// recoverable reports whether a normalization error should fail only the
// analyzers that need the file rather than the whole ingestion.
func recoverable(err error) bool {
	return apperrors.HasCode(err, apperrors.CodeMissingInput) || apperrors.HasCode(err, apperrors.CodeBadRequest)
}

func failureOf(err error) models.AnalyzerFailure {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Details != "" {
			msg += ": " + appErr.Details
		}
		return models.AnalyzerFailure{Code: string(appErr.Code), Message: msg}
	}
	return models.AnalyzerFailure{Code: string(apperrors.CodeInternal), Message: err.Error()}
}

func joinFailures(failures map[string]models.AnalyzerFailure) string {
	var out string
	for _, name := range []string{ingestReturns, ingestSales} {
		if f, ok := failures[name]; ok {
			if out != "" {
				out += "; "
			}
			out += name + ": " + f.Message
		}
	}
	return out
}

// Report returns the latest report, or nil before the first ingestion.
func (a *Analytics) Report() *models.Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report
}

// CheckViability runs a manual query against the session's models.
func (a *Analytics) CheckViability(q models.ProductQuery) (*models.ProductAssessment, error) {
	a.mu.RLock()
	set := a.models
	a.mu.RUnlock()

	res, err := set.AnalyzeProduct(q)
	if err != nil {
		return nil, err
	}
	for _, fb := range res.Fallbacks {
		a.metrics.Fallback("manual_check", fb.Name)
		a.logger.Info("manual check fallback", "fallback", fb.Name, "reason", fb.Reason)
	}
	return res, nil
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"record_count":  a.recordsProcessed.Load(),
		"runs":          a.runs.Load(),
		"models_ready":  a.models != nil,
		"returns_rows":  0,
		"sales_rows":    0,
		"last_run_id":   "",
		"last_failures": 0,
	}
	if a.returns != nil {
		stats["returns_rows"] = len(a.returns.Records)
		stats["dropped_rows"] = a.returns.Attrition.Dropped()
	}
	if a.sales != nil {
		stats["sales_rows"] = len(a.sales.Records)
		stats["synthesized_columns"] = a.sales.Synthesized
	}
	if a.report != nil {
		stats["last_run_id"] = a.report.RunID
		stats["last_processed"] = a.report.GeneratedAt
		stats["last_failures"] = len(a.report.Failures)
	}
	return stats
}
