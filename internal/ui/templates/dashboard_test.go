package templates

import (
	"context"
	"strings"
	"testing"
)

func TestDashboard_Render(t *testing.T) {
	var buf strings.Builder
	if err := Dashboard().Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()

	expected := []string{
		Title,
		Subtitle,
		`action="/api/ingest"`,
		`@get('/sse/refresh-all')`,
		`@post('/sse/manual-check')`,
		`data-bind="manual.original_price"`,
		`id="manual-check-result"`,
	}
	for _, p := range Panels {
		expected = append(expected, p.Heading, `id="`+p.ID+`"`)
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard should contain %q", want)
		}
	}
}

func TestPanel_EscapesText(t *testing.T) {
	var buf strings.Builder
	if err := panel(Panel{Heading: "<b>Sales</b>", ID: `x" onclick="y`}).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<b>") || strings.Contains(html, `onclick="y"`) {
		t.Errorf("panel text should be escaped, got %q", html)
	}
	if !strings.Contains(html, "&lt;b&gt;Sales&lt;/b&gt;") {
		t.Errorf("expected escaped heading, got %q", html)
	}
}

func TestDashboard_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf strings.Builder
	if err := Dashboard().Render(ctx, &buf); err == nil {
		t.Error("expected a cancelled render to fail")
	}
}
