package models

import "time"

// AnalyzerFailure is the terminal error of one analyzer in a run.
type AnalyzerFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report bundles every analyzer output of one ingestion run. A nil section
// means the analyzer failed or lacked input; see Failures.
type Report struct {
	RunID            string                     `json:"run_id"`
	GeneratedAt      time.Time                  `json:"generated_at"`
	ReturnsRows      int                        `json:"returns_rows"`
	SalesRows        int                        `json:"sales_rows"`
	Attrition        *Attrition                 `json:"attrition,omitempty"`
	Synthesized      []string                   `json:"synthesized_columns,omitempty"`
	Fallbacks        map[string][]Fallback      `json:"fallbacks,omitempty"`
	Training         *TrainingSummary           `json:"training,omitempty"`
	Demand           *DemandReport              `json:"demand,omitempty"`
	Viability        *ViabilityReport           `json:"viability,omitempty"`
	PriceSensitivity *PriceSensitivityReport    `json:"price_sensitivity,omitempty"`
	Lifecycle        *LifecycleReport           `json:"lifecycle,omitempty"`
	Segmentation     *SegmentationReport        `json:"segmentation,omitempty"`
	Channels         *ChannelReport             `json:"channels,omitempty"`
	Failures         map[string]AnalyzerFailure `json:"failures,omitempty"`
	Duration         time.Duration              `json:"duration_ns"`
}

// Failed reports whether the named analyzer failed in this run.
func (r *Report) Failed(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Failures[name]
	return ok
}
