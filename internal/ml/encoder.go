package ml

import "sort"

// LabelEncoder maps string classes to dense integer codes in sorted class
// order. Values never seen during Fit fall back to the first class.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitLabelEncoder learns the sorted set of distinct values.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// Classes returns a copy of the learned classes.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Fallback is the class substituted for unseen values.
func (e *LabelEncoder) Fallback() string {
	if len(e.classes) == 0 {
		return ""
	}
	return e.classes[0]
}

// Transform encodes value. known is false when the fallback class was used.
func (e *LabelEncoder) Transform(value string) (code int, known bool) {
	if i, ok := e.index[value]; ok {
		return i, true
	}
	return 0, false
}

// Inverse maps a code back to its class, or "" when out of range.
func (e *LabelEncoder) Inverse(code int) string {
	if code < 0 || code >= len(e.classes) {
		return ""
	}
	return e.classes[code]
}
