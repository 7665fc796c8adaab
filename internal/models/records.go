package models

import "time"

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ReturnRecord is one returned unit after normalization.
type ReturnRecord struct {
	OrderID     string     `json:"order_id,omitempty"`
	ProductName string     `json:"product_name"`
	Category    string     `json:"category"`
	City        string     `json:"city"`
	Location    Coordinate `json:"location"`
	Brand       string     `json:"brand,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	Quantity    *float64   `json:"quantity,omitempty"`
	Weather     string     `json:"weather"`
	ReturnDate  time.Time  `json:"return_date,omitzero"`
}

func (r ReturnRecord) HasDate() bool { return !r.ReturnDate.IsZero() }

// SaleRecord is one historical sale after normalization. Location is nil
// when the source row had no usable coordinates.
type SaleRecord struct {
	ProductName    string      `json:"product_name"`
	Category       string      `json:"category"`
	Platform       string      `json:"platform"`
	City           string      `json:"city,omitempty"`
	Brand          string      `json:"brand,omitempty"`
	Location       *Coordinate `json:"location,omitempty"`
	Quantity       float64     `json:"quantity"`
	Price          *float64    `json:"price,omitempty"`
	Weather        string      `json:"weather"`
	SaleDate       time.Time   `json:"sale_date,omitzero"`
	OrderValue     float64     `json:"order_value"`
	CommissionRate float64     `json:"commission_rate"`
	DeliveryTime   float64     `json:"delivery_time_min"`
	ConversionRate float64     `json:"conversion_rate"`
	ReturnRate     float64     `json:"return_rate"`
	Rating         float64     `json:"rating"`
}

func (s SaleRecord) HasDate() bool { return !s.SaleDate.IsZero() }

// Month truncates the sale date to the first day of its month.
func (s SaleRecord) Month() time.Time {
	return time.Date(s.SaleDate.Year(), s.SaleDate.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Attrition counts rows lost while normalizing one file.
type Attrition struct {
	InputRows            int `json:"input_rows"`
	MissingCoordinates   int `json:"missing_coordinates"`
	InvalidCoordinates   int `json:"invalid_coordinates"`
	DuplicateCoordinates int `json:"duplicate_coordinates"`
	KeptRows             int `json:"kept_rows"`
}

// Dropped is the total number of rows removed.
func (a Attrition) Dropped() int {
	return a.MissingCoordinates + a.InvalidCoordinates + a.DuplicateCoordinates
}

// Fallback records a named substitution made instead of failing.
type Fallback struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Rows   int    `json:"rows,omitempty"`
}

// ReturnsFrame is the canonical returns table plus what normalization did to it.
type ReturnsFrame struct {
	Records   []ReturnRecord  `json:"records"`
	Columns   map[string]bool `json:"columns"`
	Attrition Attrition       `json:"attrition"`
	Fallbacks []Fallback      `json:"fallbacks,omitempty"`
}

// Clone returns a deep copy so analyzers never share mutable state.
func (f *ReturnsFrame) Clone() *ReturnsFrame {
	if f == nil {
		return nil
	}
	out := &ReturnsFrame{
		Records:   make([]ReturnRecord, len(f.Records)),
		Columns:   make(map[string]bool, len(f.Columns)),
		Attrition: f.Attrition,
		Fallbacks: append([]Fallback(nil), f.Fallbacks...),
	}
	for i, r := range f.Records {
		r.Price = cloneFloat(r.Price)
		r.Quantity = cloneFloat(r.Quantity)
		out.Records[i] = r
	}
	for k, v := range f.Columns {
		out.Columns[k] = v
	}
	return out
}

// HasColumn reports whether the source file supplied the canonical column.
func (f *ReturnsFrame) HasColumn(name string) bool { return f != nil && f.Columns[name] }

// SalesFrame is the canonical sales table. Synthesized lists optional columns
// that were filled by the synthetic data policy rather than read from input.
type SalesFrame struct {
	Records     []SaleRecord    `json:"records"`
	Columns     map[string]bool `json:"columns"`
	Synthesized []string        `json:"synthesized,omitempty"`
	Fallbacks   []Fallback      `json:"fallbacks,omitempty"`
	InputRows   int             `json:"input_rows"`
}

func (f *SalesFrame) Clone() *SalesFrame {
	if f == nil {
		return nil
	}
	out := &SalesFrame{
		Records:     make([]SaleRecord, len(f.Records)),
		Columns:     make(map[string]bool, len(f.Columns)),
		Synthesized: append([]string(nil), f.Synthesized...),
		Fallbacks:   append([]Fallback(nil), f.Fallbacks...),
		InputRows:   f.InputRows,
	}
	for i, s := range f.Records {
		s.Price = cloneFloat(s.Price)
		if s.Location != nil {
			loc := *s.Location
			s.Location = &loc
		}
		out.Records[i] = s
	}
	for k, v := range f.Columns {
		out.Columns[k] = v
	}
	return out
}

func (f *SalesFrame) HasColumn(name string) bool { return f != nil && f.Columns[name] }

// IsSynthesized reports whether column was filled by the synthetic data policy.
func (f *SalesFrame) IsSynthesized(column string) bool {
	if f == nil {
		return false
	}
	for _, c := range f.Synthesized {
		if c == column {
			return true
		}
	}
	return false
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
