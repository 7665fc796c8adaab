package ingest

import "strings"

// Canonical column names produced by the normalizer.
const (
	ColOrderID      = "order_id"
	ColProductName  = "product_name"
	ColCategory     = "category"
	ColCity         = "city"
	ColReturnLat    = "return_lat"
	ColReturnLon    = "return_lon"
	ColLat          = "lat"
	ColLon          = "lon"
	ColPlatform     = "platform"
	ColBrand        = "brand"
	ColPrice        = "price"
	ColQty          = "qty"
	ColWeather      = "weather"
	ColReturnDate   = "return_date"
	ColSaleDate     = "sale_date"
	ColOrderValue   = "order_value"
	ColCommission   = "commission_rate"
	ColDeliveryTime = "delivery_time_min"
	ColConversion   = "conversion_rate"
	ColReturnRate   = "return_rate"
	ColRating       = "rating"
)

// Alias maps one canonical column to the header names accepted for it, in
// priority order.
type Alias struct {
	Canonical string
	Names     []string
}

// ReturnAliases is the header table for returns files.
var ReturnAliases = []Alias{
	{ColReturnLat, []string{"return_lat", "lat", "latitude"}},
	{ColReturnLon, []string{"return_lon", "lon", "longitude"}},
	{ColPlatform, []string{"return product platform", "platform"}},
	{ColProductName, []string{"product_name", "product name", "product"}},
	{ColCity, []string{"city", "return_city"}},
	{ColOrderID, []string{"order_id", "order id"}},
	{ColBrand, []string{"brand"}},
	{ColPrice, []string{"price"}},
	{ColQty, []string{"qty", "quantity"}},
	{ColWeather, []string{"weather", "weather condition", "weather_condition"}},
	{ColCategory, []string{"category"}},
	{ColReturnDate, []string{"return_date", "return date", "date"}},
}

// SalesAliases is the header table for sales files.
var SalesAliases = []Alias{
	{ColProductName, []string{"product_name", "product name", "product"}},
	{ColPlatform, []string{"platform", "app", "channel"}},
	{ColQty, []string{"qty", "quantity", "sales_count"}},
	{ColWeather, []string{"weather", "weather condition", "weather_condition"}},
	{ColBrand, []string{"brand"}},
	{ColCategory, []string{"category"}},
	{ColCity, []string{"city"}},
	{ColLat, []string{"lat", "latitude"}},
	{ColLon, []string{"lon", "longitude"}},
	{ColSaleDate, []string{"sale_date", "sale date", "date"}},
	{ColPrice, []string{"price", "sale_price", "selling_price", "unit_price"}},
	{ColOrderValue, []string{"order_value", "order value", "value"}},
	{ColCommission, []string{"commission_rate", "commission", "rate"}},
	{ColDeliveryTime, []string{"delivery_time_min", "delivery_time", "time"}},
	{ColConversion, []string{"conversion_rate", "conversion"}},
	{ColReturnRate, []string{"return_rate", "return rate"}},
	{ColRating, []string{"rating", "customer_rating"}},
}

// NormalizeHeader lower-cases and trims a raw header cell.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// ResolveHeader maps canonical names to column indexes. For each canonical
// name the first alias present in header wins; a source column is claimed at
// most once, and the first duplicate header takes precedence.
func ResolveHeader(header []string, table []Alias) map[string]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeHeader(h)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	claimed := make(map[int]bool, len(header))
	out := make(map[string]int, len(table))
	for _, alias := range table {
		for _, name := range alias.Names {
			idx, ok := positions[name]
			if !ok || claimed[idx] {
				continue
			}
			out[alias.Canonical] = idx
			claimed[idx] = true
			break
		}
	}
	return out
}
