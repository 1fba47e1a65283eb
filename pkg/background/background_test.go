package background

import (
	"errors"
	"math"
	"testing"

	"galsynth/pkg/frame"
)

// TestCompositeNoTile verifies a band without a registered tile passes the
// plane through untouched.
func TestCompositeNoTile(t *testing.T) {
	p := uniformPlane(t, 20, 1.0)

	res, err := Composite(p, "r", Registry{}, Options{Seed: 7})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if res.Plane != p {
		t.Error("Expected the input plane to pass through unchanged")
	}
	if res.Applied || res.BGFailed {
		t.Errorf("Expected applied=false failed=false, got %v/%v", res.Applied, res.BGFailed)
	}
	if res.SeedUsed != 7 {
		t.Errorf("Expected seed 7 to be reported, got %d", res.SeedUsed)
	}
}

func TestCompositeRejectsWrongUnit(t *testing.T) {
	data := make([]float64, 400)
	p, err := frame.NewPlane(data, 20, 0.4, 0.1, frame.UnitNanomaggie)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	reg := Registry{"r": uniformTile(100, 1.0)}
	if _, err := Composite(p, "r", reg, Options{}); !errors.Is(err, frame.ErrUnitMismatch) {
		t.Errorf("Expected ErrUnitMismatch, got %v", err)
	}
}

// TestCompositeFixedSeed verifies the fixed-seed path applies the first draw
// unconditionally and converts the tile counts into the working unit.
func TestCompositeFixedSeed(t *testing.T) {
	p := uniformPlane(t, 20, 0.0)
	tile := uniformTile(100, 1.0)
	reg := Registry{"r": tile}

	res, err := Composite(p, "r", reg, Options{Seed: 11, FixedSeed: true})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if !res.Applied {
		t.Fatal("Expected the background to be applied")
	}
	if res.SeedUsed != 11 {
		t.Errorf("Expected seed 11, got %d", res.SeedUsed)
	}

	// Uniform counts of 1 at zero point 23.9 convert to exactly
	// 1 / pixelAreaSr; with matched pixel scales the crop lands on the
	// plane one to one.
	want := frame.ArcsecSqPerSteradian / (0.4 * 0.4)
	n := res.Plane.N
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			got := res.Plane.Data[y*n+x]
			if math.Abs(got-want)/want > 1e-9 {
				t.Fatalf("(%d,%d): expected %g, got %g", y, x, want, got)
			}
		}
	}

	// A bright sky over a dark source trips the anomaly flag.
	if !res.BGFailed {
		t.Error("Expected the anomalous-brightness flag to be set")
	}
}

// TestCompositeDeterministic verifies the same seed draws the same crop.
func TestCompositeDeterministic(t *testing.T) {
	p := uniformPlane(t, 20, 0.0)
	tile := gradientTile(100)
	reg := Registry{"r": tile}
	opts := Options{Seed: 3, FixedSeed: true}

	a, err := Composite(p, "r", reg, opts)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	b, err := Composite(p, "r", reg, opts)
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if a.SeedUsed != b.SeedUsed {
		t.Fatalf("Seed differs: %d vs %d", a.SeedUsed, b.SeedUsed)
	}
	for i := range a.Plane.Data {
		if a.Plane.Data[i] != b.Plane.Data[i] {
			t.Fatalf("Sample %d differs: %g vs %g", i, a.Plane.Data[i], b.Plane.Data[i])
		}
	}
}

// TestCompositeAdaptiveAccepts verifies the adaptive loop accepts a crop
// whose flux stays within the tolerance, on the first seed.
func TestCompositeAdaptiveAccepts(t *testing.T) {
	p := uniformPlane(t, 20, 1.0)
	reg := Registry{"r": uniformTile(100, 0.0)}

	res, err := Composite(p, "r", reg, Options{Seed: 5})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if !res.Applied {
		t.Fatal("Expected the background to be applied")
	}
	if res.SeedUsed != 5 {
		t.Errorf("Expected the first seed to be accepted, got %d", res.SeedUsed)
	}
	if res.BGFailed {
		t.Error("An empty sky must not trip the anomaly flag")
	}
	for i, v := range res.Plane.Data {
		if v != 1.0 {
			t.Errorf("Sample %d changed under an empty sky: %g", i, v)
		}
	}
}

// TestCompositeRetryExhausted verifies a tile that always overwhelms the
// source exhausts the attempt cap with the typed error.
func TestCompositeRetryExhausted(t *testing.T) {
	p := uniformPlane(t, 20, 1e-6)
	reg := Registry{"r": uniformTile(100, 10.0)}

	_, err := Composite(p, "r", reg, Options{Seed: 1, MaxAttempts: 3})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

// TestCompositeClampsBelowSourceMin verifies a negative sky draw never pulls
// a composited pixel below the pre-composite minimum.
func TestCompositeClampsBelowSourceMin(t *testing.T) {
	p := uniformPlane(t, 20, 5.0)
	reg := Registry{"r": uniformTile(100, -1.0)}

	res, err := Composite(p, "r", reg, Options{Seed: 2})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if !res.Applied {
		t.Fatal("Expected the background to be applied")
	}
	for i, v := range res.Plane.Data {
		if v != 5.0 {
			t.Errorf("Sample %d not clamped to the source minimum: %g", i, v)
		}
	}
}

// TestCompositeTileTooSmall verifies a tile that cannot cover the plane's
// field of view is rejected.
func TestCompositeTileTooSmall(t *testing.T) {
	p := uniformPlane(t, 20, 1.0)
	reg := Registry{"r": uniformTile(10, 1.0)}

	if _, err := Composite(p, "r", reg, Options{Seed: 1}); err == nil {
		t.Error("Expected error for an undersized tile")
	}
}

// uniformPlane builds a 20 px working-unit plane; the 0.4 arcsec pixel scale
// matches the test tiles, so crops cover the plane one to one.
func uniformPlane(t *testing.T, n int, value float64) *frame.Plane {
	t.Helper()
	data := make([]float64, n*n)
	for i := range data {
		data[i] = value
	}
	p, err := frame.NewPlane(data, n, 0.4, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}
	return p
}

func uniformTile(dim int, counts float64) *Tile {
	data := make([]float64, dim*dim)
	for i := range data {
		data[i] = counts
	}
	return &Tile{Data: data, W: dim, H: dim, PixelScaleArcsec: 0.4, ZeroPoint: frame.ABZeroPointMicroJansky}
}

func gradientTile(dim int) *Tile {
	data := make([]float64, dim*dim)
	for i := range data {
		data[i] = float64(i) / float64(dim*dim)
	}
	return &Tile{Data: data, W: dim, H: dim, PixelScaleArcsec: 0.4, ZeroPoint: frame.ABZeroPointMicroJansky}
}
