package ml

import (
	"context"
	"math"
	"testing"
)

func TestLabelEncoder(t *testing.T) {
	enc := FitLabelEncoder([]string{"Winter", "Summer", "Rainy", "Summer"})

	classes := enc.Classes()
	want := []string{"Rainy", "Summer", "Winter"}
	if len(classes) != len(want) {
		t.Fatalf("expected %d classes, got %v", len(want), classes)
	}
	for i := range want {
		if classes[i] != want[i] {
			t.Errorf("class %d = %q, want %q", i, classes[i], want[i])
		}
	}

	if code, known := enc.Transform("Winter"); !known || code != 2 {
		t.Errorf("Transform(Winter) = %d, %v", code, known)
	}
	code, known := enc.Transform("Monsoon")
	if known {
		t.Error("unseen value should not be reported as known")
	}
	if enc.Inverse(code) != enc.Fallback() || enc.Fallback() != "Rainy" {
		t.Errorf("unseen value should map to the first class, got %q", enc.Inverse(code))
	}
}

func TestFitLine(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9}

	fit, ok := FitLine(x, y)
	if !ok {
		t.Fatal("expected a fit")
	}
	if math.Abs(fit.Slope-2) > 1e-9 || math.Abs(fit.Intercept-1) > 1e-9 {
		t.Errorf("unexpected fit %+v", fit)
	}

	flat, ok := FitLine([]float64{3, 3, 3}, []float64{1, 2, 3})
	if ok {
		t.Error("constant x should not produce a slope")
	}
	if flat.Slope != 0 || flat.Intercept != 2 {
		t.Errorf("expected horizontal line through 2, got %+v", flat)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		dec  int
		want float64
	}{
		{2.346, 2, 2.35},
		{84.0, 0, 84},
		{83.5, 0, 84},
		{-1.25, 1, -1.3},
	}
	for _, tt := range tests {
		if got := Round(tt.in, tt.dec); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.in, tt.dec, got, tt.want)
		}
	}
}

func TestLogisticRegression_Separable(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {10}, {11}, {12}, {13}}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}

	m := NewLogisticRegression()
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if m.SingleClass() {
		t.Fatal("two classes present")
	}

	low, _ := m.PredictProba([]float64{0})
	high, _ := m.PredictProba([]float64{13})
	if low >= 0.5 || high <= 0.5 {
		t.Errorf("expected p(0) < 0.5 < p(13), got %v and %v", low, high)
	}
	if _, err := m.PredictProba([]float64{1, 2}); err == nil {
		t.Error("expected width mismatch error")
	}
}

func TestLogisticRegression_SingleClass(t *testing.T) {
	m := NewLogisticRegression()
	if err := m.Fit([][]float64{{1}, {2}, {3}}, []int{1, 1, 1}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !m.SingleClass() {
		t.Error("expected single-class flag")
	}
	if p, _ := m.PredictProba([]float64{100}); p != 1 {
		t.Errorf("expected constant probability 1, got %v", p)
	}
}

func TestLogisticRegression_ReachesOptimum(t *testing.T) {
	// Overlapping classes so the penalized optimum is finite.
	X := [][]float64{{0, 1}, {1, 0}, {2, 1}, {3, 3}, {4, 2}, {2, 2}, {5, 4}, {6, 5}, {3, 1}, {7, 6}}
	y := []int{0, 0, 0, 1, 0, 1, 1, 1, 1, 1}

	m := NewLogisticRegression()
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// Gradient of the weighted, penalized log-loss at the fitted point.
	n, pos := float64(len(y)), 6.0
	grad := make([]float64, 3)
	for i, row := range X {
		z := m.transform(row)
		w := n / (2 * (n - pos))
		if y[i] == 1 {
			w = n / (2 * pos)
		}
		r := w * (sigmoid(m.weights[0]*z[0]+m.weights[1]*z[1]+m.bias) - float64(y[i]))
		grad[0] += r * z[0]
		grad[1] += r * z[1]
		grad[2] += r
	}
	grad[0] += m.L2 * m.weights[0]
	grad[1] += m.L2 * m.weights[1]

	for j, g := range grad {
		if math.Abs(g) > 1e-3 {
			t.Errorf("gradient[%d] = %v at the fitted point, want ~0", j, g)
		}
	}
}

func TestStandardize(t *testing.T) {
	mean, scale := standardize([][]float64{{1, 5}, {3, 5}})
	if mean[0] != 2 || mean[1] != 5 {
		t.Errorf("unexpected means %v", mean)
	}
	if scale[0] != 1 {
		t.Errorf("expected population std 1, got %v", scale[0])
	}
	if scale[1] != 1 {
		t.Errorf("constant column should get scale 1, got %v", scale[1])
	}
}

func TestLogisticRegression_NotFitted(t *testing.T) {
	if _, err := NewLogisticRegression().PredictProba([]float64{1}); err == nil {
		t.Error("expected error before Fit")
	}
}

func TestKNNClassifier(t *testing.T) {
	X := [][]float64{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}}
	y := []int{0, 0, 0, 1, 1, 1}

	m := NewKNNClassifier(3)
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if got, _ := m.Predict([]float64{0.5, 0.5}); got != 0 {
		t.Errorf("expected class 0 near origin, got %d", got)
	}
	if got, _ := m.Predict([]float64{10.5, 10.5}); got != 1 {
		t.Errorf("expected class 1 near (10,10), got %d", got)
	}
}

func TestKNNClassifier_TieGoesToSmallestLabel(t *testing.T) {
	m := NewKNNClassifier(2)
	if err := m.Fit([][]float64{{0}, {2}}, []int{1, 0}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Predict([]float64{1}); got != 0 {
		t.Errorf("expected tie to resolve to 0, got %d", got)
	}
}

func TestNearest(t *testing.T) {
	d := []float64{5, 1, 3, 1, 9}
	idx := Nearest(len(d), 3, func(i int) float64 { return d[i] })
	want := []int{1, 3, 2}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("Nearest() = %v, want %v", idx, want)
		}
	}
	if all := Nearest(2, 5, func(i int) float64 { return 0 }); len(all) != 2 {
		t.Errorf("k above n should return every index, got %v", all)
	}
}

func TestGradientBoosting_StepFunction(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		X = append(X, []float64{float64(i)})
		if i < 10 {
			y = append(y, 0)
		} else {
			y = append(y, 10)
		}
	}

	m := NewGradientBoostingRegressor(200, 3, 0.05)
	if err := m.Fit(context.Background(), X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	lo, _ := m.Predict([]float64{2})
	hi, _ := m.Predict([]float64{17})
	if math.Abs(lo) > 0.1 || math.Abs(hi-10) > 0.1 {
		t.Errorf("expected ~0 and ~10, got %v and %v", lo, hi)
	}
}

func TestGradientBoosting_ConstantTarget(t *testing.T) {
	m := NewGradientBoostingRegressor(10, 3, 0.1)
	if err := m.Fit(context.Background(), [][]float64{{1}, {2}, {3}}, []float64{4, 4, 4}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Predict([]float64{99}); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
}

func TestGradientBoosting_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewGradientBoostingRegressor(10, 3, 0.1)
	if err := m.Fit(ctx, [][]float64{{1}, {2}}, []float64{1, 2}); err == nil {
		t.Error("expected context error")
	}
}

func TestKMeans_SeparatedBlobs(t *testing.T) {
	points := [][]float64{
		{0, 0}, {0.1, 0.2}, {0.2, 0.1},
		{10, 10}, {10.1, 10.2}, {9.9, 10},
	}

	res, err := NewKMeans(2, 42).Fit(points)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if res.Labels[0] != res.Labels[1] || res.Labels[1] != res.Labels[2] {
		t.Errorf("first blob split: %v", res.Labels)
	}
	if res.Labels[3] != res.Labels[4] || res.Labels[4] != res.Labels[5] {
		t.Errorf("second blob split: %v", res.Labels)
	}
	if res.Labels[0] == res.Labels[3] {
		t.Errorf("blobs merged: %v", res.Labels)
	}

	again, _ := NewKMeans(2, 42).Fit(points)
	for i := range res.Labels {
		if res.Labels[i] != again.Labels[i] {
			t.Fatal("same seed should give the same labels")
		}
	}
}

func TestKMeans_InvalidK(t *testing.T) {
	if _, err := NewKMeans(3, 1).Fit([][]float64{{0}, {1}}); err == nil {
		t.Error("expected error for k above point count")
	}
}

func TestKMeans_DuplicatePoints(t *testing.T) {
	res, err := NewKMeans(2, 7).Fit([][]float64{{1, 1}, {1, 1}, {1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Inertia != 0 {
		t.Errorf("identical points should have zero inertia, got %v", res.Inertia)
	}
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(10, 0.2, 42)
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("expected 8/2 split, got %d/%d", len(train), len(test))
	}
	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}

	_, again := TrainTestSplit(10, 0.2, 42)
	if again[0] != test[0] || again[1] != test[1] {
		t.Error("split should be deterministic for a seed")
	}

	if train, test := TrainTestSplit(1, 0.2, 1); len(train) != 1 || len(test) != 0 {
		t.Errorf("single row should stay in training, got %d/%d", len(train), len(test))
	}
}
