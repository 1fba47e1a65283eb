package rebin

import (
	"math"
	"testing"

	"galsynth/pkg/frame"
)

// TestToDetector verifies the target pixel count and the preserved field of
// view when mapping onto a coarser detector grid.
func TestToDetector(t *testing.T) {
	n := 100
	data := make([]float64, n*n)
	for i := range data {
		data[i] = float64(i % n)
	}
	p, err := frame.NewPlane(data, n, 0.12, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	out, err := ToDetector(p, 0.24)
	if err != nil {
		t.Fatalf("ToDetector failed: %v", err)
	}
	if out.N != 50 {
		t.Fatalf("Expected 50 px on the detector grid, got %d", out.N)
	}
	if math.Abs(out.PixelScaleArcsec-0.24) > 1e-12 {
		t.Errorf("Expected 0.24 arcsec/px, got %g", out.PixelScaleArcsec)
	}
	if math.Abs(out.FOVArcsec()-p.FOVArcsec()) > 1e-9 {
		t.Errorf("Field of view drifted: %g vs %g arcsec", out.FOVArcsec(), p.FOVArcsec())
	}
}

// TestToDetectorNoOp verifies a matching pixel scale returns the input plane
// unchanged.
func TestToDetectorNoOp(t *testing.T) {
	p, err := frame.NewPlane(make([]float64, 16), 4, 0.24, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}

	out, err := ToDetector(p, 0.24)
	if err != nil {
		t.Fatalf("ToDetector failed: %v", err)
	}
	if out != p {
		t.Error("Expected the input plane to be returned unchanged")
	}
}

func TestToDetectorRejectsBadScale(t *testing.T) {
	p, err := frame.NewPlane(make([]float64, 16), 4, 0.24, 0.1, frame.UnitMicroJanskyPerSr)
	if err != nil {
		t.Fatalf("NewPlane failed: %v", err)
	}
	if _, err := ToDetector(p, 0); err == nil {
		t.Error("Expected error for non-positive detector scale")
	}
}
