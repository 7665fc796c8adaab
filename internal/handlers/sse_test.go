package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"resale-insights/internal/models"
)

func TestNewSSEHandlers(t *testing.T) {
	analytics := newAnalytics()
	logger := testLogger()

	handlers := NewSSEHandlers(analytics, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewSSEHandlers() should set analytics field")
	}
	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func TestSSEHandlers_renderViabilityTable(t *testing.T) {
	handlers := NewSSEHandlers(newAnalytics(), testLogger())

	decisions := []models.ViabilityDecision{
		{OrderID: "R1", Product: "Fan", City: "Delhi", Decision: models.DecisionYes, Confidence: 82, BestPlatform: "Blinkit", Reason: "Strong"},
		{OrderID: "R2", Product: "<script>", City: "Pune", Decision: models.DecisionNo, BestPlatform: "Unknown", Reason: "None"},
	}

	html, err := handlers.renderViabilityTable(decisions)
	if err != nil {
		t.Fatalf("renderViabilityTable() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="viability-content">`,
		"<th>Sell Near Me</th>",
		"R1", "Fan", "Delhi", "82%", "Blinkit",
		"decision-NO",
		"&lt;script&gt;",
	}
	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Error("product names must be escaped")
	}
}

func TestSSEHandlers_renderViabilityTable_Limit(t *testing.T) {
	handlers := NewSSEHandlers(newAnalytics(), testLogger())

	decisions := make([]models.ViabilityDecision, maxTableRows+10)
	for i := range decisions {
		decisions[i] = models.ViabilityDecision{OrderID: "row", Decision: models.DecisionMaybe}
	}
	html, err := handlers.renderViabilityTable(decisions)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(html, "<tr>") - 1; got != maxTableRows {
		t.Errorf("expected %d body rows, got %d", maxTableRows, got)
	}
}

func assertSSE(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q, want text/event-stream", ct)
	}
}

func TestSSEHandlers_HandleRefreshAll(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		handlers := NewSSEHandlers(newAnalytics(), testLogger())
		w := httptest.NewRecorder()
		handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil))

		assertSSE(t, w)
		if !strings.Contains(w.Body.String(), "No data ingested yet") {
			t.Error("expected the empty-state element")
		}
	})

	t.Run("with report", func(t *testing.T) {
		handlers := NewSSEHandlers(createTestAnalytics(t), testLogger())
		w := httptest.NewRecorder()
		handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil))

		assertSSE(t, w)
		body := w.Body.String()
		for _, want := range []string{"viabilityCounts", "simulationData", "lifecycleKpis", "cityMetrics", "channelHeader", "viability-content", "status-content"} {
			if !strings.Contains(body, want) {
				t.Errorf("expected %q in event stream", want)
			}
		}
	})
}

func TestSSEHandlers_HandleViability(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), testLogger())
	w := httptest.NewRecorder()
	handlers.HandleViability(w, httptest.NewRequest(http.MethodGet, "/sse/viability", nil))

	assertSSE(t, w)
	if !strings.Contains(w.Body.String(), "modern-table") {
		t.Error("expected the viability table")
	}
}

func TestSSEHandlers_HandleManualCheck(t *testing.T) {
	manual := func(signals string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/sse/manual-check?datastar="+url.QueryEscape(signals), nil)
	}
	valid := `{"manual":{"product_name":"Desk Fan","category":"Fan","original_price":150,"weather":"Summer","city":"Delhi"}}`

	tests := []struct {
		name    string
		trained bool
		req     *http.Request
		want    string
	}{
		{"valid", true, manual(valid), "Sell probability"},
		{"invalid form", true, manual(`{"manual":{"product_name":"Fan"}}`), "Fill in product"},
		{"unreadable", true, manual(`{`), "Could not read"},
		{"untrained", false, manual(valid), "Models are not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analytics := newAnalytics()
			if tt.trained {
				analytics = createTestAnalytics(t)
			}
			handlers := NewSSEHandlers(analytics, testLogger())
			w := httptest.NewRecorder()
			handlers.HandleManualCheck(w, tt.req)

			assertSSE(t, w)
			body := w.Body.String()
			if !strings.Contains(body, "manual-check-result") || !strings.Contains(body, tt.want) {
				t.Errorf("expected %q in %s", tt.want, body)
			}
		})
	}
}
