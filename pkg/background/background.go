// Package background composites a randomly placed crop of a real-sky
// mosaic tile onto an image plane.
//
// Tiles are looked up per photometric band in an explicit registry; a band
// with no tile short-circuits to a pass-through, which is not an error. The
// crop placement is seeded, and under adaptive convergence a crop whose
// total flux overwhelms the source is rejected and redrawn with the next
// seed, up to a hard attempt cap.
package background

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"galsynth/pkg/frame"
	"galsynth/pkg/resample"
)

const (
	// DefaultOverflowTolerance caps the accepted background flux at this
	// multiple of the source flux under adaptive convergence.
	DefaultOverflowTolerance = 1.0

	// DefaultMaxAttempts bounds the adaptive redraw loop; hitting the cap
	// turns a pathological tile into a typed failure instead of a hang.
	DefaultMaxAttempts = 100

	// failedMeanFactor flags a composite whose mean exceeds this
	// multiple of the pre-composite mean as anomalously bright.
	failedMeanFactor = 5.0

	// Placement margins: the crop origin is drawn from [edgeMargin,
	// dim/placementSpan] on each tile axis, avoiding tile-edge artifacts.
	edgeMargin    = 5
	placementSpan = 1.3
)

// ErrRetryExhausted reports an adaptive acceptance loop that hit its attempt
// cap without finding an acceptable crop. Fatal for the run.
var ErrRetryExhausted = errors.New("background: retry attempts exhausted")

// Tile is one real-sky background mosaic with its own calibration.
type Tile struct {
	// Data holds H*W samples in row-major order, in the tile's raw
	// counts.
	Data []float64
	W, H int

	// PixelScaleArcsec is the mosaic pixel scale.
	PixelScaleArcsec float64

	// ZeroPoint is the AB zero point calibrating Data.
	ZeroPoint float64
}

// Registry maps a photometric band name to at most one background tile.
// Absence means no background is available for that band.
type Registry map[string]*Tile

// Options controls one compositing run.
type Options struct {
	// Seed seeds the placement draw. Under adaptive convergence the
	// seed increments on every rejected draw.
	Seed uint64

	// FixedSeed accepts the first draw unconditionally. When false, the
	// adaptive flux-bounded acceptance loop runs.
	FixedSeed bool

	// OverflowTolerance and MaxAttempts parameterize the adaptive loop;
	// zero values take the defaults.
	OverflowTolerance float64
	MaxAttempts       int
}

// Result is the outcome of one compositing run.
type Result struct {
	// Plane is the composited plane, or the input plane untouched when
	// no tile was registered for the band.
	Plane *frame.Plane

	// Applied reports whether a background was composited.
	Applied bool

	// BGFailed is set when the composite was accepted but its mean is
	// anomalously bright relative to the source. Reported as a flag,
	// never an error; the caller decides disposition.
	BGFailed bool

	// SeedUsed is the seed of the accepted draw.
	SeedUsed uint64
}

// Composite overlays a randomly placed, unit-converted crop of the band's
// background tile onto the plane. The plane must be in microjansky per
// steradian, the pipeline's working unit.
func Composite(p *frame.Plane, band string, reg Registry, opts Options) (Result, error) {
	tile, ok := reg[band]
	if !ok || tile == nil {
		return Result{Plane: p, SeedUsed: opts.Seed}, nil
	}
	if p.Unit != frame.UnitMicroJanskyPerSr {
		return Result{}, fmt.Errorf("background: %w: plane is %s, want %s", frame.ErrUnitMismatch, p.Unit, frame.UnitMicroJanskyPerSr)
	}

	tolerance := opts.OverflowTolerance
	if tolerance <= 0 {
		tolerance = DefaultOverflowTolerance
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	// Crop enough tile pixels to cover the plane's field of view, but
	// never more pixels than the plane itself has: oversized crops
	// introduce interpolation noise when squeezed onto the source grid.
	cropSize := int(math.Floor(float64(p.N) * p.PixelScaleArcsec / tile.PixelScaleArcsec))
	if cropSize > p.N {
		cropSize = p.N
	}
	if cropSize < 1 || cropSize > tile.W || cropSize > tile.H {
		return Result{}, fmt.Errorf("background: tile (%dx%d px at %g arcsec/px) cannot cover a %d px plane at %g arcsec/px",
			tile.W, tile.H, tile.PixelScaleArcsec, p.N, p.PixelScaleArcsec)
	}

	totalSource := floats.Sum(p.Data)
	seed := opts.Seed
	for attempt := 0; attempt < maxAttempts; attempt++ {
		bg, err := drawCrop(p, tile, cropSize, seed)
		if err != nil {
			return Result{}, err
		}
		if !opts.FixedSeed && floats.Sum(bg) > tolerance*totalSource {
			seed++
			continue
		}
		return accept(p, bg, seed), nil
	}
	return Result{}, fmt.Errorf("%w: %d attempts, tolerance %gx source flux", ErrRetryExhausted, maxAttempts, tolerance)
}

// drawCrop crops the tile at a seeded random offset, converts the crop to
// the working flux unit and regrids it onto the plane's exact grid.
func drawCrop(p *frame.Plane, tile *Tile, cropSize int, seed uint64) ([]float64, error) {
	rng := rand.New(rand.NewSource(seed))

	startY := drawOffset(rng, tile.H, cropSize)
	startX := drawOffset(rng, tile.W, cropSize)

	crop := make([]float64, cropSize*cropSize)
	for y := 0; y < cropSize; y++ {
		copy(crop[y*cropSize:], tile.Data[(startY+y)*tile.W+startX:(startY+y)*tile.W+startX+cropSize])
	}

	cropPlane, err := frame.NewPlane(crop, cropSize, tile.PixelScaleArcsec, 0, frame.UnitTileCounts)
	if err != nil {
		return nil, fmt.Errorf("background: assembling crop: %w", err)
	}
	cropPlane.ZeroPoint = tile.ZeroPoint
	converted, err := frame.TileCountsToMicroJyPerSr(cropPlane)
	if err != nil {
		return nil, fmt.Errorf("background: converting crop: %w", err)
	}

	bg, err := resample.RegridSquare(converted.Data, cropSize, p.N)
	if err != nil {
		return nil, fmt.Errorf("background: regridding crop: %w", err)
	}
	return bg, nil
}

// drawOffset draws a crop origin from the central span of one tile axis,
// clamped so the crop always fits inside the tile.
func drawOffset(rng *rand.Rand, dim, cropSize int) int {
	hi := int(float64(dim) / placementSpan)
	if hi < edgeMargin {
		hi = edgeMargin
	}
	off := edgeMargin + rng.Intn(hi-edgeMargin+1)
	if off+cropSize > dim {
		off = dim - cropSize
	}
	return off
}

// accept composites the background, clamps interpolation-induced dips below
// the pre-composite minimum and evaluates the overflow flag.
func accept(p *frame.Plane, bg []float64, seed uint64) Result {
	sourceMin := floats.Min(p.Data)
	composite := make([]float64, len(p.Data))
	for i, v := range p.Data {
		c := v + bg[i]
		if c < sourceMin {
			c = sourceMin
		}
		composite[i] = c
	}

	out := p.WithData(composite)
	return Result{
		Plane:    out,
		Applied:  true,
		BGFailed: out.Mean() > failedMeanFactor*p.Mean(),
		SeedUsed: seed,
	}
}
