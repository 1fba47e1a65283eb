package petrosian

import (
	"math"
	"testing"

	"galsynth/pkg/frame"
)

func TestProfileRadiusGrid(t *testing.T) {
	n := 64
	prof := NewProfile(n)

	if len(prof.Radii) != NumRadii {
		t.Fatalf("Expected %d radii, got %d", NumRadii, len(prof.Radii))
	}
	if math.Abs(prof.Radii[0]-1e-4) > 1e-12 {
		t.Errorf("First radius: expected 1e-4, got %g", prof.Radii[0])
	}
	if math.Abs(prof.Radii[NumRadii-1]-1.5*float64(n)) > 1e-9 {
		t.Errorf("Last radius: expected %g, got %g", 1.5*float64(n), prof.Radii[NumRadii-1])
	}
	for i := 1; i < NumRadii; i++ {
		if prof.Radii[i] <= prof.Radii[i-1] {
			t.Fatalf("Radius grid not strictly increasing at %d: %g <= %g", i, prof.Radii[i], prof.Radii[i-1])
		}
	}
}

// TestProfileCountsMonotonic verifies the interior pixel sets grow with the
// radius and eventually cover the whole plane.
func TestProfileCountsMonotonic(t *testing.T) {
	n := 32
	prof := NewProfile(n)

	for i := 1; i < NumRadii; i++ {
		if prof.InteriorCount(i) < prof.InteriorCount(i-1) {
			t.Fatalf("Interior count shrank at radius %d", i)
		}
	}
	if prof.InteriorCount(0) != 0 {
		t.Errorf("Expected an empty interior at the smallest radius, got %d pixels", prof.InteriorCount(0))
	}
	if prof.InteriorCount(NumRadii-1) != n*n {
		t.Errorf("Expected the largest radius to cover all %d pixels, got %d", n*n, prof.InteriorCount(NumRadii-1))
	}
}

// TestRatiosEmptySetDefault verifies the ratio defaults to 1.0 at radii whose
// interior or annulus holds no pixels, so the scan always completes.
func TestRatiosEmptySetDefault(t *testing.T) {
	n := 32
	prof := NewProfile(n)
	data := make([]float64, n*n)
	for i := range data {
		data[i] = 3.0
	}

	ratios := prof.Ratios(data)
	if ratios[0] != 1.0 {
		t.Errorf("Expected default ratio 1.0 at the smallest radius, got %g", ratios[0])
	}
	// A flat plane has identical annulus and interior means everywhere
	// both sets are populated, so every ratio is exactly 1.
	for i, r := range ratios {
		if math.Abs(r-1.0) > 1e-12 {
			t.Errorf("Flat plane ratio at radius %d: expected 1.0, got %g", i, r)
		}
	}
}

// TestEstimateExponentialProfile checks the estimated radius of an
// exponential disk against the analytic Petrosian radius. For
// I(r) = exp(-r/rs), the enclosed flux is proportional to
// G(u) = 1 - (1+u)exp(-u) with u = r/rs, and the ratio of the annulus mean
// to the interior mean is (G(1.25u) - G(0.8u)) / (0.9225 * G(u)).
func TestEstimateExponentialProfile(t *testing.T) {
	n := 200
	rs := 15.0
	p := exponentialPlane(t, n, rs)

	res := Estimate(p, 0)
	if res.Degenerate {
		t.Fatalf("Exponential profile flagged degenerate (delta %g)", res.RatioDelta)
	}

	g := func(u float64) float64 { return 1 - (1+u)*math.Exp(-u) }
	ratio := func(u float64) float64 {
		return (g(1.25*u) - g(0.8*u)) / ((1.25*1.25 - 0.8*0.8) * g(u))
	}
	// The continuous ratio decreases monotonically through the target;
	// bisect for the root.
	lo, hi := 1.0, 10.0
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		if ratio(mid) > TargetRatio {
			lo = mid
		} else {
			hi = mid
		}
	}
	want := (lo + hi) / 2 * rs

	// Pixel discretization of the annulus shifts the measured ratio a
	// little; allow the estimate to land within two grid steps.
	step := (1.5*float64(n) - 1e-4) / float64(NumRadii-1)
	if math.Abs(res.RadiusPixels-want) > 2*step {
		t.Errorf("Petrosian radius %g px is more than two grid steps (%g) from the analytic %g px",
			res.RadiusPixels, step, want)
	}
	if math.Abs(res.RadiusKpc-res.RadiusPixels*p.PixelScaleKpc) > 1e-12 {
		t.Errorf("RadiusKpc %g inconsistent with %g px at %g kpc/px",
			res.RadiusKpc, res.RadiusPixels, p.PixelScaleKpc)
	}
	if res.Radii == nil || res.Ratios == nil {
		t.Error("Expected the scanned curve to be exposed")
	}
}

// TestEstimateFlatPlane verifies the tie-break rule: a flat plane scores the
// same ratio distance everywhere, and the scan must settle on the largest
// grid radius and flag the estimate degenerate.
func TestEstimateFlatPlane(t *testing.T) {
	n := 32
	data := make([]float64, n*n)
	for i := range data {
		data[i] = 1.0
	}
	p, err := frame.NewPlane(data, n, 0.5, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	res := Estimate(p, 0)
	if !res.Degenerate {
		t.Error("Expected a flat plane to be flagged degenerate")
	}
	if math.Abs(res.RadiusPixels-1.5*float64(n)) > 1e-9 {
		t.Errorf("Expected the tie to resolve to the largest radius %g, got %g",
			1.5*float64(n), res.RadiusPixels)
	}
	if math.Abs(res.RatioDelta-0.8) > 1e-12 {
		t.Errorf("Expected ratio delta 0.8, got %g", res.RatioDelta)
	}
}

// TestEstimateSuppliedRadius verifies a positive supplied radius bypasses the
// scan entirely.
func TestEstimateSuppliedRadius(t *testing.T) {
	p, err := frame.NewPlane(make([]float64, 16), 4, 0.5, 0.5, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	res := Estimate(p, 2.0)
	if res.RadiusKpc != 2.0 {
		t.Errorf("Expected supplied radius 2.0 kpc, got %g", res.RadiusKpc)
	}
	if math.Abs(res.RadiusPixels-4.0) > 1e-12 {
		t.Errorf("Expected 4.0 px, got %g", res.RadiusPixels)
	}
	if res.Radii != nil || res.Ratios != nil {
		t.Error("Bypassed estimate must not expose a scanned curve")
	}
}

func BenchmarkEstimate(b *testing.B) {
	n := 256
	data := make([]float64, n*n)
	half := float64(n) / 2
	for y := 0; y < n; y++ {
		cy := float64(y) - half + 0.5
		for x := 0; x < n; x++ {
			cx := float64(x) - half + 0.5
			data[y*n+x] = math.Exp(-math.Hypot(cx, cy) / 20.0)
		}
	}
	p, err := frame.NewPlane(data, n, 0.5, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		b.Fatalf("NewPlane failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Estimate(p, 0)
	}
}

// exponentialPlane builds an n px plane with an exponential disk of the
// given scale length (in pixels) at the center.
func exponentialPlane(t *testing.T, n int, rs float64) *frame.Plane {
	t.Helper()
	data := make([]float64, n*n)
	half := float64(n) / 2
	for y := 0; y < n; y++ {
		cy := float64(y) - half + 0.5
		for x := 0; x < n; x++ {
			cx := float64(x) - half + 0.5
			data[y*n+x] = math.Exp(-math.Hypot(cx, cy) / rs)
		}
	}
	p, err := frame.NewPlane(data, n, 0.5, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}
	return p
}
