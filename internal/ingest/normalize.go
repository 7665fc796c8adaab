// Package ingest turns loosely formatted returns and sales files into the
// canonical frames the analyzers consume.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "resale-insights/internal/errors"
	"resale-insights/internal/models"
	"resale-insights/internal/spatial"
)

const (
	batchSize      = 2000
	defaultWorkers = 4

	// UnknownWeather fills weather cells that cannot be imputed.
	UnknownWeather = "Unknown"
)

// Fallback names recorded on the frames.
const (
	FallbackWeatherImputed = "weather_brand_mode"
	FallbackWeatherUnknown = "weather_unknown"
	FallbackPriceBackfill  = "price_brand_unit_price"
	FallbackQtyDefault     = "qty_default_one"
	FallbackQtyUnparsed    = "qty_unparsed_zero"
	FallbackSynthetic      = "synthetic_"
)

var (
	returnsRequired = []string{ColProductName, ColCategory, ColCity, ColReturnLat, ColReturnLon}
	salesRequired   = []string{ColProductName, ColPlatform}
	syntheticOrder  = []string{ColOrderValue, ColCommission, ColDeliveryTime, ColConversion, ColReturnRate, ColRating}
)

type Options struct {
	Workers   int
	Synthetic SyntheticPolicy
	Logger    *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return defaultWorkers
	}
	return o.Workers
}

type returnRow struct {
	rec      models.ReturnRecord
	lat, lon *float64
}

type saleRow struct {
	rec       models.SaleRecord
	qtyBroken bool
}

// NormalizeReturns reads a returns CSV. Rows without usable coordinates are
// dropped and duplicate coordinates collapse to their first occurrence; both
// are counted on the frame's Attrition.
func NormalizeReturns(ctx context.Context, r io.Reader, opts Options) (*models.ReturnsFrame, error) {
	header, rows, err := readTable(r, "returns")
	if err != nil {
		return nil, err
	}
	cols := ResolveHeader(header, ReturnAliases)
	if err := requireColumns("returns", cols, returnsRequired); err != nil {
		return nil, err
	}

	parsed := make([]returnRow, len(rows))
	err = coerceParallel(ctx, len(rows), opts.workers(), func(i int) {
		row := rows[i]
		parsed[i] = returnRow{
			rec: models.ReturnRecord{
				OrderID:     field(row, cols, ColOrderID),
				ProductName: field(row, cols, ColProductName),
				Category:    field(row, cols, ColCategory),
				City:        field(row, cols, ColCity),
				Brand:       field(row, cols, ColBrand),
				Platform:    field(row, cols, ColPlatform),
				Price:       parseOptional(field(row, cols, ColPrice)),
				Quantity:    parseOptional(field(row, cols, ColQty)),
				Weather:     field(row, cols, ColWeather),
				ReturnDate:  parseDate(field(row, cols, ColReturnDate)),
			},
			lat: parseOptional(field(row, cols, ColReturnLat)),
			lon: parseOptional(field(row, cols, ColReturnLon)),
		}
	})
	if err != nil {
		return nil, err
	}

	frame := &models.ReturnsFrame{
		Columns:   presentColumns(cols),
		Attrition: models.Attrition{InputRows: len(rows)},
	}

	seen := make(map[models.Coordinate]bool, len(parsed))
	records := make([]models.ReturnRecord, 0, len(parsed))
	for _, p := range parsed {
		if p.lat == nil || p.lon == nil {
			frame.Attrition.MissingCoordinates++
			continue
		}
		if !spatial.ValidCoordinate(*p.lat, *p.lon) {
			frame.Attrition.InvalidCoordinates++
			continue
		}
		loc := models.Coordinate{Lat: *p.lat, Lon: *p.lon}
		if seen[loc] {
			frame.Attrition.DuplicateCoordinates++
			continue
		}
		seen[loc] = true
		p.rec.Location = loc
		records = append(records, p.rec)
	}
	frame.Attrition.KeptRows = len(records)

	title := cases.Title(language.Und)
	views := make([]imputeView, len(records))
	for i := range records {
		records[i].Category = titleOrEmpty(title, records[i].Category)
		views[i] = imputeView{
			brand:   &records[i].Brand,
			weather: &records[i].Weather,
			price:   &records[i].Price,
			qty:     records[i].Quantity,
		}
	}
	frame.Fallbacks = append(frame.Fallbacks, imputeWeather(views, title)...)
	if hasColumn(cols, ColPrice) {
		if fb, ok := backfillPrice(views); ok {
			frame.Fallbacks = append(frame.Fallbacks, fb)
		}
	}
	frame.Records = records

	logger := opts.logger()
	if dropped := frame.Attrition.Dropped(); dropped > 0 {
		logger.Warn("dropped returns rows",
			"missing_coordinates", frame.Attrition.MissingCoordinates,
			"invalid_coordinates", frame.Attrition.InvalidCoordinates,
			"duplicate_coordinates", frame.Attrition.DuplicateCoordinates)
	}
	logFallbacks(logger, "returns", frame.Fallbacks)
	logger.Info("normalized returns", "input_rows", len(rows), "kept_rows", len(records))
	return frame, nil
}

// NormalizeSales reads a sales CSV. Sales rows are never dropped: rows
// without valid coordinates keep a nil Location and are skipped by the
// spatial analyzers.
func NormalizeSales(ctx context.Context, r io.Reader, opts Options) (*models.SalesFrame, error) {
	header, rows, err := readTable(r, "sales")
	if err != nil {
		return nil, err
	}
	cols := ResolveHeader(header, SalesAliases)
	if err := requireColumns("sales", cols, salesRequired); err != nil {
		return nil, err
	}
	hasQty := hasColumn(cols, ColQty)

	parsed := make([]saleRow, len(rows))
	err = coerceParallel(ctx, len(rows), opts.workers(), func(i int) {
		row := rows[i]
		s := saleRow{rec: models.SaleRecord{
			ProductName:    field(row, cols, ColProductName),
			Category:       field(row, cols, ColCategory),
			Platform:       field(row, cols, ColPlatform),
			City:           field(row, cols, ColCity),
			Brand:          field(row, cols, ColBrand),
			Price:          parseOptional(field(row, cols, ColPrice)),
			Weather:        field(row, cols, ColWeather),
			SaleDate:       parseDate(field(row, cols, ColSaleDate)),
			OrderValue:     numberOrZero(field(row, cols, ColOrderValue)),
			CommissionRate: numberOrZero(field(row, cols, ColCommission)),
			DeliveryTime:   numberOrZero(field(row, cols, ColDeliveryTime)),
			ConversionRate: numberOrZero(field(row, cols, ColConversion)),
			ReturnRate:     numberOrZero(field(row, cols, ColReturnRate)),
			Rating:         numberOrZero(field(row, cols, ColRating)),
		}}
		if lat, lon := parseOptional(field(row, cols, ColLat)), parseOptional(field(row, cols, ColLon)); lat != nil && lon != nil && spatial.ValidCoordinate(*lat, *lon) {
			s.rec.Location = &models.Coordinate{Lat: *lat, Lon: *lon}
		}
		switch {
		case !hasQty:
			s.rec.Quantity = 1
		default:
			if q, ok := parseNumber(field(row, cols, ColQty)); ok {
				s.rec.Quantity = q
			} else {
				s.qtyBroken = true
			}
		}
		parsed[i] = s
	})
	if err != nil {
		return nil, err
	}

	frame := &models.SalesFrame{
		Columns:   presentColumns(cols),
		InputRows: len(rows),
		Records:   make([]models.SaleRecord, len(parsed)),
	}
	var brokenQty, located int
	for i, p := range parsed {
		frame.Records[i] = p.rec
		if p.qtyBroken {
			brokenQty++
		}
		if p.rec.Location != nil {
			located++
		}
	}
	if !hasQty {
		frame.Fallbacks = append(frame.Fallbacks, models.Fallback{
			Name:   FallbackQtyDefault,
			Reason: "no quantity column; every sale counts as one unit",
			Rows:   len(rows),
		})
	}
	if brokenQty > 0 {
		frame.Fallbacks = append(frame.Fallbacks, models.Fallback{
			Name:   FallbackQtyUnparsed,
			Reason: "malformed quantity treated as zero",
			Rows:   brokenQty,
		})
	}

	title := cases.Title(language.Und)
	views := make([]imputeView, len(frame.Records))
	for i := range frame.Records {
		rec := &frame.Records[i]
		rec.Category = titleOrEmpty(title, rec.Category)
		views[i] = imputeView{
			brand:   &rec.Brand,
			weather: &rec.Weather,
			price:   &rec.Price,
			qty:     &rec.Quantity,
		}
	}
	frame.Fallbacks = append(frame.Fallbacks, imputeWeather(views, title)...)
	if hasColumn(cols, ColPrice) {
		if fb, ok := backfillPrice(views); ok {
			frame.Fallbacks = append(frame.Fallbacks, fb)
		}
	}

	for _, col := range syntheticOrder {
		if hasColumn(cols, col) {
			continue
		}
		values, ok := opts.Synthetic.Fill(col, len(frame.Records))
		if !ok {
			continue
		}
		for i := range frame.Records {
			setSynthetic(&frame.Records[i], col, values[i])
		}
		frame.Synthesized = append(frame.Synthesized, col)
		frame.Fallbacks = append(frame.Fallbacks, models.Fallback{
			Name:   FallbackSynthetic + col,
			Reason: "column absent from input; filled by synthetic data policy",
			Rows:   len(frame.Records),
		})
	}

	logger := opts.logger()
	if missing := len(frame.Records) - located; missing > 0 {
		logger.Info("sales rows without usable coordinates", "rows", missing)
	}
	logFallbacks(logger, "sales", frame.Fallbacks)
	logger.Info("normalized sales", "rows", len(frame.Records), "synthesized", frame.Synthesized)
	return frame, nil
}

func readTable(r io.Reader, domain string) ([]string, [][]string, error) {
	if r == nil {
		return nil, nil, apperrors.MissingInput(fmt.Sprintf("%s file not provided", domain))
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperrors.MissingInput(fmt.Sprintf("%s file is empty", domain))
	}
	if err != nil {
		return nil, nil, apperrors.BadRequestWrap(err, fmt.Sprintf("read %s header", domain))
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, apperrors.BadRequestWrap(err, fmt.Sprintf("read %s rows", domain))
	}
	return header, rows, nil
}

func requireColumns(domain string, cols map[string]int, required []string) error {
	var missing []string
	for _, c := range required {
		if !hasColumn(cols, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return apperrors.MissingInput(fmt.Sprintf("%s file is missing required columns", domain)).
		WithDetails(strings.Join(missing, ", "))
}

// coerceParallel runs fn over [0, n) in batches on a bounded worker pool.
// fn must only write to index i of its output.
func coerceParallel(ctx context.Context, n, workers int, fn func(i int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

func presentColumns(cols map[string]int) map[string]bool {
	out := make(map[string]bool, len(cols))
	for c := range cols {
		out[c] = true
	}
	return out
}

func hasColumn(cols map[string]int, name string) bool {
	_, ok := cols[name]
	return ok
}

func numberOrZero(s string) float64 {
	v, _ := parseNumber(s)
	return v
}

func titleOrEmpty(c cases.Caser, s string) string {
	if isMissingText(s) {
		return ""
	}
	return c.String(s)
}

func setSynthetic(rec *models.SaleRecord, column string, v float64) {
	switch column {
	case ColOrderValue:
		rec.OrderValue = v
	case ColCommission:
		rec.CommissionRate = v
	case ColDeliveryTime:
		rec.DeliveryTime = v
	case ColConversion:
		rec.ConversionRate = v
	case ColReturnRate:
		rec.ReturnRate = v
	case ColRating:
		rec.Rating = v
	}
}

func logFallbacks(logger *slog.Logger, domain string, fallbacks []models.Fallback) {
	for _, fb := range fallbacks {
		logger.Info("normalizer fallback", "domain", domain, "fallback", fb.Name, "rows", fb.Rows, "reason", fb.Reason)
	}
}
