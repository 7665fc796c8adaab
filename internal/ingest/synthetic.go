package ingest

import (
	"hash/fnv"
	"math/rand/v2"
)

// SyntheticRange is the uniform interval a synthesized column is drawn from.
type SyntheticRange struct {
	Low, High float64
}

// SyntheticRanges lists every column the synthetic data policy may fill.
var SyntheticRanges = map[string]SyntheticRange{
	ColOrderValue:   {0.1, 1.0},
	ColCommission:   {0.1, 1.0},
	ColConversion:   {0.1, 1.0},
	ColReturnRate:   {0.1, 1.0},
	ColDeliveryTime: {10, 30},
	ColRating:       {3.5, 5.0},
	ColPrice:        {100, 1000},
}

// SyntheticPolicy fills optional columns that are absent from the input with
// uniform random values. Each column gets its own stream derived from Seed,
// so output does not depend on the order columns are requested in.
type SyntheticPolicy struct {
	Enabled bool
	Seed    uint64
}

// Fill returns n synthesized values for column. ok is false when the policy
// is disabled or the column has no documented range.
func (p SyntheticPolicy) Fill(column string, n int) (values []float64, ok bool) {
	r, known := SyntheticRanges[column]
	if !p.Enabled || !known {
		return nil, false
	}
	h := fnv.New64a()
	h.Write([]byte(column))
	rng := rand.New(rand.NewPCG(p.Seed, h.Sum64()))

	values = make([]float64, n)
	for i := range values {
		values[i] = r.Low + rng.Float64()*(r.High-r.Low)
	}
	return values, true
}
