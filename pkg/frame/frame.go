// Package frame defines the image plane that flows through the realism
// pipeline, together with the telescope and cosmology descriptors and the
// checked flux-unit conversions. A plane is immutable by convention: every
// pipeline stage derives a new plane rather than mutating its input.
package frame

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Physical and photometric constants shared across the pipeline.
const (
	// ABZeroPointNanomaggie is the AB magnitude zero point of the
	// nanomaggie flux unit (SDSS convention).
	ABZeroPointNanomaggie = 22.5

	// ABZeroPointMicroJansky is the AB magnitude corresponding to a flux
	// of 1 microjansky.
	ABZeroPointMicroJansky = 23.9

	// ArcsecSqPerSteradian converts a pixel area in arcsec^2 to steradian.
	ArcsecSqPerSteradian = 4.255e10
)

// ErrUnitMismatch reports a flux-unit conversion applied to a plane carrying
// the wrong unit tag.
var ErrUnitMismatch = errors.New("frame: flux unit mismatch")

// FluxUnit tags the physical unit of the samples in a Plane. Conversions
// between units are explicit, checked functions; a plane's unit is never
// silently reinterpreted.
type FluxUnit int

const (
	UnitUnknown FluxUnit = iota

	// UnitMicroJanskyPerSr is surface brightness in microjansky per
	// steradian, the working unit of the pipeline.
	UnitMicroJanskyPerSr

	// UnitNanomaggie is the SDSS calibrated flux unit (AB zero point 22.5).
	UnitNanomaggie

	// UnitTileCounts marks raw pixel values from a background mosaic,
	// calibrated only through the tile's own zero point.
	UnitTileCounts
)

// String returns a short human-readable unit name.
func (u FluxUnit) String() string {
	switch u {
	case UnitMicroJanskyPerSr:
		return "microJy/sr"
	case UnitNanomaggie:
		return "nanomaggie"
	case UnitTileCounts:
		return "tile counts"
	default:
		return "unknown"
	}
}

// Telescope describes the instrument the mock observation emulates.
type Telescope struct {
	// PSFFWHMArcsec is the full width at half maximum of the point
	// spread function in arcseconds.
	PSFFWHMArcsec float64

	// PixelScaleArcsec is the native detector pixel scale in arcseconds
	// per pixel.
	PixelScaleArcsec float64
}

// Cosmology carries the adopted cosmological parameters along with the
// externally computed distances derived from them. The pipeline treats these
// values as opaque input and never recomputes them.
type Cosmology struct {
	Redshift float64
	H0       float64
	OmegaM   float64
	OmegaV   float64

	LumDistMpc     float64
	AngDiamDistMpc float64
	KpcPerArcsec   float64
}

// Plane is one square image plane plus the metadata that travels with it.
type Plane struct {
	// Data holds N*N samples in row-major order.
	Data []float64

	// N is the pixel count along each axis.
	N int

	// PixelScaleArcsec and PixelScaleKpc are the angular and physical
	// pixel scales. PixelScaleKpc may be zero for planes not tied to a
	// cosmology (e.g. raw background tile crops).
	PixelScaleArcsec float64
	PixelScaleKpc    float64

	// Unit tags the physical unit of Data.
	Unit FluxUnit

	// ZeroPoint is the AB zero point associated with Data when Unit is
	// a calibrated unit; zero otherwise.
	ZeroPoint float64
}

// NewPlane validates and assembles an image plane. The grid must be square
// with a positive pixel count and a positive angular pixel scale.
func NewPlane(data []float64, n int, pixelScaleArcsec, pixelScaleKpc float64, unit FluxUnit) (*Plane, error) {
	if n <= 0 {
		return nil, fmt.Errorf("frame: pixel count must be positive, got %d", n)
	}
	if len(data) != n*n {
		return nil, fmt.Errorf("frame: expected %d samples for a %dx%d plane, got %d", n*n, n, n, len(data))
	}
	if pixelScaleArcsec <= 0 {
		return nil, fmt.Errorf("frame: pixel scale must be positive, got %g arcsec", pixelScaleArcsec)
	}
	return &Plane{
		Data:             data,
		N:                n,
		PixelScaleArcsec: pixelScaleArcsec,
		PixelScaleKpc:    pixelScaleKpc,
		Unit:             unit,
	}, nil
}

// FOVArcsec returns the angular field of view covered by the plane.
func (p *Plane) FOVArcsec() float64 { return p.PixelScaleArcsec * float64(p.N) }

// FOVKpc returns the physical field of view covered by the plane.
func (p *Plane) FOVKpc() float64 { return p.PixelScaleKpc * float64(p.N) }

// TotalFlux returns the integrated flux of the plane in its native unit.
func (p *Plane) TotalFlux() float64 { return floats.Sum(p.Data) }

// Mean returns the mean sample value.
func (p *Plane) Mean() float64 { return stat.Mean(p.Data, nil) }

// Min returns the minimum sample value.
func (p *Plane) Min() float64 { return floats.Min(p.Data) }

// WithData derives a new plane with the same shape and metadata but
// different samples.
func (p *Plane) WithData(data []float64) *Plane {
	if len(data) != p.N*p.N {
		panic(fmt.Sprintf("frame: WithData sample count %d does not match %dx%d plane", len(data), p.N, p.N))
	}
	out := *p
	out.Data = data
	return &out
}

// WithResized derives a new plane with a different pixel count covering the
// same field of view; the pixel scales are rescaled accordingly.
func (p *Plane) WithResized(data []float64, n int) *Plane {
	if len(data) != n*n {
		panic(fmt.Sprintf("frame: WithResized sample count %d does not match %dx%d plane", len(data), n, n))
	}
	ratio := float64(p.N) / float64(n)
	out := *p
	out.Data = data
	out.N = n
	out.PixelScaleArcsec = p.PixelScaleArcsec * ratio
	out.PixelScaleKpc = p.PixelScaleKpc * ratio
	return &out
}

// TileCountsToMicroJyPerSr converts a plane of raw background-tile counts
// into surface brightness in microjansky per steradian using the tile's
// photometric zero point and angular pixel scale.
func TileCountsToMicroJyPerSr(p *Plane) (*Plane, error) {
	if p.Unit != UnitTileCounts {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnitMismatch, UnitTileCounts, p.Unit)
	}
	countsToMicroJy := math.Pow(10, -0.4*(p.ZeroPoint-ABZeroPointMicroJansky))
	pixelAreaSr := p.PixelScaleArcsec * p.PixelScaleArcsec / ArcsecSqPerSteradian

	data := make([]float64, len(p.Data))
	scale := countsToMicroJy / pixelAreaSr
	for i, v := range p.Data {
		data[i] = v * scale
	}
	out := p.WithData(data)
	out.Unit = UnitMicroJanskyPerSr
	out.ZeroPoint = 0
	return out, nil
}

// MicroJyPerSrToNanomaggies converts a surface-brightness plane into
// calibrated per-pixel fluxes in nanomaggies, referenced to the given AB
// zero point. This is the conversion applied before persisting a final
// image.
func MicroJyPerSrToNanomaggies(p *Plane, zeroPoint float64) (*Plane, error) {
	if p.Unit != UnitMicroJanskyPerSr {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnitMismatch, UnitMicroJanskyPerSr, p.Unit)
	}
	pixelAreaSr := p.PixelScaleArcsec * p.PixelScaleArcsec / ArcsecSqPerSteradian
	microJyToCounts := math.Pow(10, -0.4*(zeroPoint-ABZeroPointMicroJansky))

	data := make([]float64, len(p.Data))
	scale := pixelAreaSr / microJyToCounts
	for i, v := range p.Data {
		data[i] = v * scale
	}
	out := p.WithData(data)
	out.Unit = UnitNanomaggie
	out.ZeroPoint = ABZeroPointNanomaggie
	return out, nil
}
