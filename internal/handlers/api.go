package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"resale-insights/internal/config"
	"resale-insights/internal/errors"
	"resale-insights/internal/models"
	"resale-insights/internal/observability"
	"resale-insights/internal/services"
)

const (
	multipartMemory = 8 << 20
	maxJSONBody     = 1 << 20

	formReturns = "returns"
	formSales   = "sales"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	data      config.DataConfig
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger, data config.DataConfig) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
		data:      data,
	}
}

// IngestSummary is the response to an upload: what was read and what
// failed, without the analyzer sections.
type IngestSummary struct {
	RunID       string                            `json:"run_id"`
	ReturnsRows int                               `json:"returns_rows"`
	SalesRows   int                               `json:"sales_rows"`
	Attrition   *models.Attrition                 `json:"attrition,omitempty"`
	Synthesized []string                          `json:"synthesized_columns,omitempty"`
	Fallbacks   map[string][]models.Fallback      `json:"fallbacks,omitempty"`
	Failures    map[string]models.AnalyzerFailure `json:"failures,omitempty"`
	Training    *models.TrainingSummary           `json:"training,omitempty"`
	DurationMs  int64                             `json:"duration_ms"`
}

func summarize(r *models.Report) IngestSummary {
	return IngestSummary{
		RunID:       r.RunID,
		ReturnsRows: r.ReturnsRows,
		SalesRows:   r.SalesRows,
		Attrition:   r.Attrition,
		Synthesized: r.Synthesized,
		Fallbacks:   r.Fallbacks,
		Failures:    r.Failures,
		Training:    r.Training,
		DurationMs:  r.Duration.Milliseconds(),
	}
}

// HandleIngest accepts a multipart upload with optional "returns" and
// "sales" CSV files and replaces the session with their analysis.
func (h *APIHandlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	if h.data.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.data.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Invalid multipart upload"), requestID)
		return
	}
	defer r.MultipartForm.RemoveAll()

	returns, closeReturns, err := formFile(r, formReturns)
	if err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Unreadable returns file"), requestID)
		return
	}
	defer closeReturns()
	sales, closeSales, err := formFile(r, formSales)
	if err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Unreadable sales file"), requestID)
		return
	}
	defer closeSales()

	ctx := r.Context()
	if h.data.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.data.LoadTimeout)
		defer cancel()
	}

	report, err := h.analytics.Ingest(ctx, returns, sales)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = errors.ServiceUnavailable("Analysis timed out")
		}
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	h.logger.Info("ingestion complete",
		"run_id", report.RunID,
		"request_id", requestID,
		"failures", len(report.Failures),
	)
	errors.WriteSuccess(w, summarize(report))
}

// formFile returns a nil reader when the field was not uploaded.
func formFile(r *http.Request, field string) (io.Reader, func(), error) {
	f, _, err := r.FormFile(field)
	if stderrors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return f, func() { f.Close() }, nil
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.currentReport(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, report, reportHeaders(report))
}

func (h *APIHandlers) HandleDemand(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerDemand, func(rep *models.Report) any { return rep.Demand })
}

func (h *APIHandlers) HandleViability(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerViability, func(rep *models.Report) any { return rep.Viability })
}

func (h *APIHandlers) HandlePriceSensitivity(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerPriceSensitivity, func(rep *models.Report) any { return rep.PriceSensitivity })
}

func (h *APIHandlers) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerLifecycle, func(rep *models.Report) any { return rep.Lifecycle })
}

func (h *APIHandlers) HandleSegmentation(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerSegmentation, func(rep *models.Report) any { return rep.Segmentation })
}

func (h *APIHandlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	h.writeSection(w, r, services.AnalyzerChannels, func(rep *models.Report) any { return rep.Channels })
}

func (h *APIHandlers) HandleManualCheck(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	var q models.ProductQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "Invalid JSON body"), requestID)
		return
	}
	if err := validate.Struct(q); err != nil {
		errors.WriteError(w, h.logger, errors.ValidationWrap(err, "Invalid manual check").WithDetails(err.Error()), requestID)
		return
	}

	res, err := h.analytics.CheckViability(q)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccess(w, res)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}

func (h *APIHandlers) currentReport(w http.ResponseWriter, r *http.Request) (*models.Report, bool) {
	report := h.analytics.Report()
	if report == nil {
		requestID := observability.GetRequestID(r.Context())
		errors.WriteError(w, h.logger, errors.MissingInput("No data has been ingested yet"), requestID)
		return nil, false
	}
	return report, true
}

// writeSection writes one analyzer's output, or its recorded failure.
func (h *APIHandlers) writeSection(w http.ResponseWriter, r *http.Request, name string, section func(*models.Report) any) {
	report, ok := h.currentReport(w, r)
	if !ok {
		return
	}
	if f, failed := report.Failures[name]; failed {
		requestID := observability.GetRequestID(r.Context())
		errors.WriteError(w, h.logger, errors.New(errors.ErrorCode(f.Code), f.Message), requestID)
		return
	}
	errors.WriteSuccessWithHeaders(w, section(report), reportHeaders(report))
}

func reportHeaders(r *models.Report) map[string]string {
	return map[string]string{
		"Cache-Control": "no-cache",
		"ETag":          `"` + r.RunID + `"`,
	}
}
