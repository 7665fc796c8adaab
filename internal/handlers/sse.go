package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"resale-insights/internal/errors"
	"resale-insights/internal/models"
	"resale-insights/internal/services"
)

const maxTableRows = 50

var viabilityTableTemplate = template.Must(template.New("viabilityTable").Parse(`
<div id="viability-content">
<table class="modern-table">
<thead><tr><th>Order</th><th>Product</th><th>City</th><th>Sell Near Me</th><th>Confidence</th><th>Platform</th><th>Reason</th></tr></thead>
<tbody>
{{range $i, $d := .Data}}{{if lt $i $.MaxRows}}<tr>
<td>{{.OrderID}}</td>
<td>{{.Product}}</td>
<td>{{.City}}</td>
<td><span class="decision-badge decision-{{.Decision}}">{{.Decision}}</span></td>
<td><strong>{{.Confidence}}%</strong></td>
<td>{{.BestPlatform}}</td>
<td>{{.Reason}}</td>
</tr>{{end}}{{end}}
</tbody>
</table>
</div>`))

var manualCheckTemplate = template.Must(template.New("manualCheck").Parse(`
<div id="manual-check-result">
{{if .Error}}<div class="error-card">{{.Error}}</div>{{else}}{{with .Result}}<div class="result-card">
<h3>{{.ProductName}}</h3>
<p>Sell probability: <strong>{{printf "%.2f" .SellProbability}}%</strong></p>
<p>Recommended app: <strong>{{.RecommendedApp}}</strong></p>
<p>Weather impact: {{.WeatherImpact}}</p>
<p>Predicted market price: ₹{{.PredictedMarketPrice}}</p>
<p>Estimated profit: ₹{{.EstimatedProfit}}</p>
{{if not .PriceAcceptable}}<p class="warning">Asking price is above the predicted market price.</p>{{end}}
</div>{{end}}{{end}}
</div>`))

const noDataElement = `<div id="status-content">No data ingested yet. Upload a returns and sales file to begin.</div>`

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type templateData struct {
	Data    any
	MaxRows int
}

func (h *SSEHandlers) renderViabilityTable(decisions []models.ViabilityDecision) (string, error) {
	var buf strings.Builder

	if len(decisions) > maxTableRows {
		decisions = decisions[:maxTableRows]
	}

	err := viabilityTableTemplate.Execute(&buf, templateData{Data: decisions, MaxRows: maxTableRows})
	return buf.String(), err
}

// dashboardSignals is the chart and KPI state pushed to the page.
func dashboardSignals(r *models.Report) map[string]any {
	signals := map[string]any{
		"runId":    r.RunID,
		"failures": r.Failures,
	}
	if r.Viability != nil {
		signals["viabilityCounts"] = r.Viability.Counts
		signals["regionalSummary"] = r.Viability.RegionalSummary
		signals["mapData"] = r.Viability.MapPoints
	}
	if r.Demand != nil {
		signals["demandMatches"] = r.Demand.Matches
	}
	if r.PriceSensitivity != nil {
		signals["simulationData"] = r.PriceSensitivity.Simulation
		signals["keyInsight"] = r.PriceSensitivity.KeyInsight
	}
	if r.Lifecycle != nil {
		signals["lifecycleKpis"] = r.Lifecycle.KPIs
		signals["trendChartData"] = r.Lifecycle.TrendChart
	}
	if r.Segmentation != nil {
		signals["segmentationKpis"] = r.Segmentation.KPIs
		signals["cityMetrics"] = r.Segmentation.Cities
	}
	if r.Channels != nil {
		signals["channelHeader"] = r.Channels.Header
		signals["marketShare"] = r.Channels.MarketShare
		signals["revenueTrend"] = r.Channels.RevenueTrend
	}
	return signals
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	report := h.analytics.Report()
	if report == nil {
		sse.PatchElements(noDataElement)
		return
	}

	allSignals, err := json.Marshal(dashboardSignals(report))
	if err != nil {
		h.logger.Error("marshal dashboard signals", "error", err)
		return
	}
	sse.PatchSignals(allSignals)

	if report.Viability != nil {
		html, err := h.renderViabilityTable(report.Viability.Decisions)
		if err != nil {
			h.logger.Error("render viability table", "error", err)
			return
		}
		sse.PatchElements(html)
	}
	sse.PatchElements(`<div id="status-content">✅ Report ` + template.HTMLEscapeString(report.RunID) + ` loaded</div>`)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleViability(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	report := h.analytics.Report()
	if report == nil || report.Viability == nil {
		sse.PatchElements(`<div id="viability-content">No viability results available.</div>`)
		return
	}

	html, err := h.renderViabilityTable(report.Viability.Decisions)
	if err != nil {
		h.logger.Error("render viability table", "error", err)
		return
	}
	sse.PatchElements(html)

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

type manualCheckSignals struct {
	Manual models.ProductQuery `json:"manual"`
}

type manualCheckView struct {
	Result *models.ProductAssessment
	Error  string
}

// HandleManualCheck reads the manual form from datastar signals and patches
// the result card.
func (h *SSEHandlers) HandleManualCheck(w http.ResponseWriter, r *http.Request) {
	var signals manualCheckSignals
	readErr := datastar.ReadSignals(r, &signals)

	sse := datastar.NewSSE(w, r)

	view := manualCheckView{}
	switch {
	case readErr != nil:
		view.Error = "Could not read the form."
	case validate.Struct(signals.Manual) != nil:
		view.Error = "Fill in product, category, weather, city and a positive price."
	default:
		res, err := h.analytics.CheckViability(signals.Manual)
		if err != nil {
			h.logger.Warn("manual check failed", "error", err)
			view.Error = "Manual check failed."
			if errors.HasCode(err, errors.CodeModelNotReady) {
				view.Error = "Models are not ready. Ingest a sales file first."
			}
		}
		view.Result = res
	}

	var buf strings.Builder
	if err := manualCheckTemplate.Execute(&buf, view); err != nil {
		h.logger.Error("render manual check", "error", err)
		return
	}
	sse.PatchElements(buf.String())

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
