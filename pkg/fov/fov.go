// Package fov rescales a plane to a canonical pixel scale tied to the
// Petrosian radius and places it onto a fixed-size output grid.
package fov

import (
	"fmt"

	"galsynth/pkg/frame"
	"galsynth/pkg/resample"
)

const (
	// DefaultScaleConstant ties the canonical pixel scale to the
	// Petrosian radius: one pixel spans k * r_petro kpc. A historical
	// Galaxy Zoo variant used 0.016; 0.008 is the canonical value here.
	DefaultScaleConstant = 0.008

	// DefaultTargetPixels is the canonical output grid size.
	DefaultTargetPixels = 424
)

// Normalize rescales the plane so one pixel spans k*rPetroKpc kpc, then
// centers it on a zero-initialized targetPixels-square canvas: symmetric
// zero padding when the rescaled image is smaller, a center crop when it is
// larger. For odd size differences the leading edge takes floor(diff/2) and
// the trailing edge the remainder; that asymmetry is part of the output
// format. The result is exactly targetPixels x targetPixels.
func Normalize(p *frame.Plane, rPetroKpc float64, targetPixels int, k float64) (*frame.Plane, error) {
	if rPetroKpc <= 0 {
		return nil, fmt.Errorf("fov: Petrosian radius must be positive, got %g kpc", rPetroKpc)
	}
	if targetPixels <= 0 {
		return nil, fmt.Errorf("fov: target pixel count must be positive, got %d", targetPixels)
	}
	if k <= 0 {
		return nil, fmt.Errorf("fov: scale constant must be positive, got %g", k)
	}

	newPixelKpc := k * rPetroKpc
	nNew := int(p.PixelScaleKpc / newPixelKpc * float64(p.N))
	if nNew <= 0 {
		return nil, fmt.Errorf("fov: canonical scale %g kpc/px collapses a %d px plane", newPixelKpc, p.N)
	}
	resized, err := resample.RegridSquare(p.Data, p.N, nNew)
	if err != nil {
		return nil, fmt.Errorf("fov: %w", err)
	}

	canvas := make([]float64, targetPixels*targetPixels)
	diff := targetPixels - nNew
	if diff >= 0 {
		shift := diff / 2
		for y := 0; y < nNew; y++ {
			copy(canvas[(y+shift)*targetPixels+shift:], resized[y*nNew:y*nNew+nNew])
		}
	} else {
		shift := -diff / 2
		for y := 0; y < targetPixels; y++ {
			copy(canvas[y*targetPixels:], resized[(y+shift)*nNew+shift:(y+shift)*nNew+shift+targetPixels])
		}
	}

	out := *p
	out.Data = canvas
	out.N = targetPixels
	out.PixelScaleKpc = newPixelKpc
	if p.PixelScaleKpc > 0 {
		out.PixelScaleArcsec = p.PixelScaleArcsec * newPixelKpc / p.PixelScaleKpc
	}
	return &out, nil
}
