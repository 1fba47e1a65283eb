// Package rebin maps a PSF-convolved plane onto the telescope's native
// detector pixel scale.
package rebin

import (
	"fmt"
	"math"

	"galsynth/pkg/frame"
	"galsynth/pkg/resample"
)

// ToDetector resamples the plane so that one pixel corresponds to the
// telescope's native pixel scale. The target pixel count is
// floor(source_scale / detector_scale * source_count); when the scales
// already match, the input plane is returned unchanged.
func ToDetector(p *frame.Plane, detectorPixelScaleArcsec float64) (*frame.Plane, error) {
	if detectorPixelScaleArcsec <= 0 {
		return nil, fmt.Errorf("rebin: detector pixel scale must be positive, got %g arcsec", detectorPixelScaleArcsec)
	}
	nNew := int(math.Floor(p.PixelScaleArcsec / detectorPixelScaleArcsec * float64(p.N)))
	if nNew == p.N {
		return p, nil
	}
	data, err := resample.RegridSquare(p.Data, p.N, nNew)
	if err != nil {
		return nil, fmt.Errorf("rebin: %w", err)
	}
	return p.WithResized(data, nNew), nil
}
