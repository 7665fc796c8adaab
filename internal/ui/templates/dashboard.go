// Package templates renders the dashboard shell. Data arrives afterwards
// over datastar SSE patches.
package templates

const (
	Title    = "Resale Insights"
	Subtitle = "Returned inventory, resold nearby"
)

// Panel is one dashboard card and the element id SSE patches target.
type Panel struct {
	Heading string
	ID      string
}

var Panels = []Panel{
	{"Status", "status-content"},
	{"Resale Viability Near Return Location", "viability-content"},
	{"Demand Matching", "demand-content"},
	{"Price Sensitivity", "price-content"},
	{"Product Lifecycle", "lifecycle-content"},
	{"City Segmentation", "segmentation-content"},
	{"Channel Performance", "channels-content"},
}

// ManualField binds one manual check input to a datastar signal.
type ManualField struct {
	Label  string
	Signal string
	Type   string
}

var ManualFields = []ManualField{
	{"Product", "manual.product_name", "text"},
	{"Category", "manual.category", "text"},
	{"Original price", "manual.original_price", "number"},
	{"Weather", "manual.weather", "text"},
	{"City", "manual.city", "text"},
}
