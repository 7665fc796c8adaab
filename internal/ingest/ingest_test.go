package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/models"
	"resale-insights/internal/observability"
)

func testOptions() Options {
	return Options{
		Workers:   2,
		Synthetic: SyntheticPolicy{Enabled: true, Seed: 42},
		Logger:    observability.Discard(),
	}
}

func findFallback(fallbacks []models.Fallback, name string) (models.Fallback, bool) {
	for _, fb := range fallbacks {
		if fb.Name == name {
			return fb, true
		}
	}
	return models.Fallback{}, false
}

func TestResolveHeader_FirstMatchWins(t *testing.T) {
	header := []string{" LAT ", "Latitude", "Product Name", "qty", "Quantity", "Return_Lon", "City"}
	cols := ResolveHeader(header, ReturnAliases)

	tests := map[string]int{
		ColReturnLat:   0,
		ColReturnLon:   5,
		ColProductName: 2,
		ColQty:         3,
		ColCity:        6,
	}
	for canonical, want := range tests {
		if got, ok := cols[canonical]; !ok || got != want {
			t.Errorf("%s -> %d (present %v), want %d", canonical, got, ok, want)
		}
	}
	if _, ok := cols[ColCategory]; ok {
		t.Error("category was not in the header")
	}
}

func TestResolveHeader_SalesAliases(t *testing.T) {
	cols := ResolveHeader([]string{"Product", "App", "Sales_Count", "Value", "Commission"}, SalesAliases)

	for canonical, want := range map[string]int{
		ColProductName: 0,
		ColPlatform:    1,
		ColQty:         2,
		ColOrderValue:  3,
		ColCommission:  4,
	} {
		if got := cols[canonical]; got != want {
			t.Errorf("%s -> %d, want %d", canonical, got, want)
		}
	}
}

func TestNormalizeReturns_Attrition(t *testing.T) {
	csv := `product_name,category,city,lat,lon,brand,qty,price,weather,return_date
Widget,beauty,Delhi,28.70,77.10,Acme,1,100,sunny,2024-03-05
Widget,beauty,Delhi,,77.10,Acme,1,100,sunny,2024-03-06
Widget,beauty,Delhi,abc,77.10,Acme,1,100,sunny,2024-03-06
Widget,beauty,Delhi,95,77.10,Acme,1,100,sunny,2024-03-07
Gadget,toys,Delhi,28.70,77.10,Acme,1,100,sunny,2024-03-08
Gadget,TOYS,Mumbai,19.07,72.87,Acme,2,,RAINY,
`
	frame, err := NormalizeReturns(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatalf("NormalizeReturns() error = %v", err)
	}

	want := models.Attrition{
		InputRows:            6,
		MissingCoordinates:   2,
		InvalidCoordinates:   1,
		DuplicateCoordinates: 1,
		KeptRows:             2,
	}
	if frame.Attrition != want {
		t.Errorf("attrition = %+v, want %+v", frame.Attrition, want)
	}
	if frame.Attrition.Dropped() != 4 {
		t.Errorf("expected 4 dropped rows, got %d", frame.Attrition.Dropped())
	}

	first := frame.Records[0]
	if first.ProductName != "Widget" || first.Category != "Beauty" || first.Weather != "Sunny" {
		t.Errorf("unexpected first record %+v", first)
	}
	if !first.HasDate() || first.ReturnDate.Day() != 5 {
		t.Errorf("expected return date to parse, got %v", first.ReturnDate)
	}

	second := frame.Records[1]
	if second.Category != "Toys" || second.Weather != "Rainy" {
		t.Errorf("expected title-cased category and weather, got %q / %q", second.Category, second.Weather)
	}
	if second.HasDate() {
		t.Error("blank date should stay unset")
	}
	if second.Price == nil || *second.Price != 200 {
		t.Errorf("expected backfilled price 200, got %v", second.Price)
	}
	if _, ok := findFallback(frame.Fallbacks, FallbackPriceBackfill); !ok {
		t.Error("expected price backfill fallback to be recorded")
	}
}

func TestNormalizeReturns_DedupeIdempotent(t *testing.T) {
	csv := `product_name,category,city,lat,lon
A,Beauty,Delhi,28.1,77.1
B,Beauty,Delhi,28.1,77.1
C,Beauty,Delhi,28.2,77.2
D,Beauty,Delhi,28.2,77.2
E,Beauty,Delhi,28.3,77.3
`
	first, err := NormalizeReturns(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("product_name,category,city,lat,lon\n")
	for _, r := range first.Records {
		fmt.Fprintf(&b, "%s,%s,%s,%v,%v\n", r.ProductName, r.Category, r.City, r.Location.Lat, r.Location.Lon)
	}
	second, err := NormalizeReturns(context.Background(), strings.NewReader(b.String()), testOptions())
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Records) != 3 {
		t.Fatalf("expected 3 unique coordinates, got %d", len(first.Records))
	}
	if len(second.Records) != len(first.Records) {
		t.Errorf("second pass changed row count: %d -> %d", len(first.Records), len(second.Records))
	}
	if second.Attrition.DuplicateCoordinates != 0 {
		t.Errorf("second pass should find no duplicates, got %d", second.Attrition.DuplicateCoordinates)
	}
	if first.Records[0].ProductName != "A" || first.Records[1].ProductName != "C" {
		t.Error("duplicates should collapse to the first occurrence")
	}
}

func TestNormalizeReturns_MissingColumns(t *testing.T) {
	csv := "product_name,category,lat,lon\nA,Beauty,28.1,77.1\n"
	_, err := NormalizeReturns(context.Background(), strings.NewReader(csv), testOptions())
	if !apperrors.HasCode(err, apperrors.CodeMissingInput) {
		t.Fatalf("expected MISSING_INPUT, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing required columns") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	if _, err := NormalizeReturns(context.Background(), strings.NewReader(""), testOptions()); !apperrors.HasCode(err, apperrors.CodeMissingInput) {
		t.Errorf("expected MISSING_INPUT for empty returns, got %v", err)
	}
	if _, err := NormalizeSales(context.Background(), nil, testOptions()); !apperrors.HasCode(err, apperrors.CodeMissingInput) {
		t.Errorf("expected MISSING_INPUT for nil sales reader, got %v", err)
	}
}

func TestNormalizeSales_WeatherImputation(t *testing.T) {
	csv := `product_name,platform,qty,brand,weather
A,Blinkit,2,Acme,sunny
B,Blinkit,5,Acme,rainy
C,Zepto,1,Acme,
D,Zepto,1,Nova,
E,Zepto,1,,
`
	frame, err := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatalf("NormalizeSales() error = %v", err)
	}

	wantWeather := []string{"Sunny", "Rainy", "Rainy", UnknownWeather, UnknownWeather}
	for i, want := range wantWeather {
		if got := frame.Records[i].Weather; got != want {
			t.Errorf("row %d weather = %q, want %q", i, got, want)
		}
	}

	if fb, ok := findFallback(frame.Fallbacks, FallbackWeatherImputed); !ok || fb.Rows != 1 {
		t.Errorf("expected one imputed weather cell, got %+v", fb)
	}
	if fb, ok := findFallback(frame.Fallbacks, FallbackWeatherUnknown); !ok || fb.Rows != 2 {
		t.Errorf("expected two unknown weather cells, got %+v", fb)
	}
}

func TestNormalizeSales_WeatherTieBreak(t *testing.T) {
	csv := `product_name,platform,qty,brand,weather
A,Blinkit,3,Acme,Winter
B,Blinkit,3,Acme,Summer
C,Zepto,1,Acme,
`
	frame, err := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := frame.Records[2].Weather; got != "Summer" {
		t.Errorf("tied weather should resolve alphabetically, got %q", got)
	}
}

func TestNormalizeSales_DefaultsAndLocations(t *testing.T) {
	csv := `Product Name,App,Category,Lat,Lon,Date
A,Blinkit,beauty,28.7,77.1,2024-01-15
B,Zepto,beauty,,,2024-02-15
C,Zepto,beauty,200,77.1,bad-date
`
	frame, err := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatalf("NormalizeSales() error = %v", err)
	}
	if len(frame.Records) != 3 {
		t.Fatalf("sales rows must never be dropped, got %d", len(frame.Records))
	}
	for _, rec := range frame.Records {
		if rec.Quantity != 1 {
			t.Errorf("expected default quantity 1, got %v", rec.Quantity)
		}
	}
	if fb, ok := findFallback(frame.Fallbacks, FallbackQtyDefault); !ok || fb.Rows != 3 {
		t.Errorf("expected qty default fallback over 3 rows, got %+v", fb)
	}
	if frame.Records[0].Location == nil || frame.Records[1].Location != nil || frame.Records[2].Location != nil {
		t.Error("only the first sale has usable coordinates")
	}
	if frame.Records[0].Month().Month() != 1 || frame.Records[2].HasDate() {
		t.Error("unexpected date parsing")
	}
	if frame.HasColumn(ColQty) {
		t.Error("qty was not supplied by the source")
	}
}

func TestNormalizeSales_UnparsedQuantity(t *testing.T) {
	csv := "product_name,platform,qty\nA,Blinkit,two\nB,Blinkit,3\n"
	frame, err := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if frame.Records[0].Quantity != 0 || frame.Records[1].Quantity != 3 {
		t.Errorf("unexpected quantities %v, %v", frame.Records[0].Quantity, frame.Records[1].Quantity)
	}
	if _, ok := findFallback(frame.Fallbacks, FallbackQtyUnparsed); !ok {
		t.Error("expected unparsed quantity fallback")
	}
}

func TestNormalizeSales_SyntheticPolicy(t *testing.T) {
	csv := "product_name,platform,qty,rating\nA,Blinkit,1,4.2\nB,Zepto,2,3.9\n"

	frame, err := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Synthesized) != 5 {
		t.Fatalf("expected 5 synthesized columns, got %v", frame.Synthesized)
	}
	if frame.IsSynthesized(ColRating) {
		t.Error("rating came from the input")
	}
	if !frame.IsSynthesized(ColDeliveryTime) {
		t.Error("delivery time should be synthesized")
	}
	for _, rec := range frame.Records {
		if rec.DeliveryTime < 10 || rec.DeliveryTime > 30 {
			t.Errorf("delivery time %v outside [10, 30]", rec.DeliveryTime)
		}
		if rec.CommissionRate < 0.1 || rec.CommissionRate > 1 {
			t.Errorf("commission %v outside [0.1, 1]", rec.CommissionRate)
		}
	}
	if frame.Records[0].Rating != 4.2 {
		t.Errorf("source rating overwritten: %v", frame.Records[0].Rating)
	}

	again, _ := NormalizeSales(context.Background(), strings.NewReader(csv), testOptions())
	if again.Records[1].OrderValue != frame.Records[1].OrderValue {
		t.Error("same seed should synthesize the same values")
	}

	opts := testOptions()
	opts.Synthetic.Enabled = false
	plain, _ := NormalizeSales(context.Background(), strings.NewReader(csv), opts)
	if len(plain.Synthesized) != 0 || plain.Records[0].OrderValue != 0 {
		t.Error("disabled policy must not synthesize columns")
	}
}

func TestNormalize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	csv := "product_name,platform\nA,Blinkit\n"
	if _, err := NormalizeSales(ctx, strings.NewReader(csv), testOptions()); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestSyntheticPolicy_Fill(t *testing.T) {
	p := SyntheticPolicy{Enabled: true, Seed: 1}

	values, ok := p.Fill(ColPrice, 50)
	if !ok || len(values) != 50 {
		t.Fatalf("expected 50 values, got %d (ok=%v)", len(values), ok)
	}
	for _, v := range values {
		if v < 100 || v > 1000 {
			t.Errorf("price %v outside [100, 1000]", v)
		}
	}
	if _, ok := p.Fill("unknown_column", 3); ok {
		t.Error("columns without a range cannot be synthesized")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{" 1,200 ", 1200, true},
		{"-12,000.50", -12000.5, true},
		{"1,234,567", 1234567, true},
		{"1,5", 0, false},
		{"12,34", 0, false},
		{"1,2345", 0, false},
		{",100", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
