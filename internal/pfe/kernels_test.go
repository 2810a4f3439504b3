package pfe

import (
	"math"
	"testing"
)

func TestSamplerDeterministic(t *testing.T) {
	a := newSampler(42)
	b := newSampler(42)
	for i := 0; i < 100; i++ {
		if got, want := a.Uniform(-1, 1), b.Uniform(-1, 1); got != want {
			t.Fatalf("draw %d: %v != %v", i, got, want)
		}
		if got, want := a.Gaussian(0, 2), b.Gaussian(0, 2); got != want {
			t.Fatalf("gaussian draw %d: %v != %v", i, got, want)
		}
	}
}

func TestSamplerUniformRange(t *testing.T) {
	s := newSampler(1)
	for i := 0; i < 1000; i++ {
		v := s.Uniform(2, 5)
		if v < 2 || v >= 5 {
			t.Fatalf("draw %v outside [2, 5)", v)
		}
	}
}

func TestLinearRegressionSlope(t *testing.T) {
	t.Run("exact line", func(t *testing.T) {
		ts := []float64{0, 1, 2, 3, 4}
		xs := []float64{1, 3, 5, 7, 9} // slope 2
		if got := linearRegressionSlope(ts, xs); math.Abs(got-2) > 1e-12 {
			t.Errorf("slope = %v, want 2", got)
		}
	})

	t.Run("fewer than two samples", func(t *testing.T) {
		if got := linearRegressionSlope([]float64{1}, []float64{5}); got != 0 {
			t.Errorf("slope = %v, want 0", got)
		}
	})

	t.Run("zero denominator", func(t *testing.T) {
		ts := []float64{3, 3, 3}
		xs := []float64{1, 2, 3}
		if got := linearRegressionSlope(ts, xs); got != 0 {
			t.Errorf("slope = %v, want 0 for constant ts", got)
		}
	})
}

func TestArgsortDesc(t *testing.T) {
	ws := []float64{1, 9, 1, 4, 1}
	idx := argsortDesc(ws)

	want := []int{1, 3, 0, 2, 4} // descending, stable on the three ties
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("argsort = %v, want %v", idx, want)
		}
	}
}

func TestWeightedMean(t *testing.T) {
	vs := []float64{1, 2, 3, 4}

	t.Run("weighted", func(t *testing.T) {
		ws := []float64{0, 0, 0, 1}
		if got := weightedMean(vs, ws); got != 4 {
			t.Errorf("mean = %v, want 4", got)
		}
	})

	t.Run("scale invariant", func(t *testing.T) {
		ws := []float64{0.1, 0.4, 0.2, 0.3}
		scaled := make([]float64, len(ws))
		for i, w := range ws {
			scaled[i] = w * 37.5
		}
		a := weightedMean(vs, ws)
		b := weightedMean(vs, scaled)
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("scaling weights changed the mean: %v vs %v", a, b)
		}
	})

	t.Run("zero weight sum falls back to unweighted", func(t *testing.T) {
		ws := []float64{0, 0, 0, 0}
		if got := weightedMean(vs, ws); got != 2.5 {
			t.Errorf("mean = %v, want unweighted 2.5", got)
		}
	})
}

func TestStdDev(t *testing.T) {
	if got := stdDev([]float64{5}); got != 0 {
		t.Errorf("stdDev of one sample = %v, want 0", got)
	}
	got := stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2.138) > 0.01 {
		t.Errorf("stdDev = %v, want about 2.14", got)
	}
}
