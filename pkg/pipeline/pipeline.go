// Package pipeline chains the individual realism stages into one run:
// PSF convolution, detector rebinning, sky-noise injection, Petrosian
// radius estimation, field-of-view normalization and background
// compositing.
//
// Stages run strictly sequentially and each produces a new immutable plane;
// the pipeline performs no internal concurrency. Running many bands or many
// objects in parallel is the caller's business: independent Pipeline
// instances share no mutable state.
package pipeline

import (
	"errors"
	"fmt"

	"galsynth/pkg/background"
	"galsynth/pkg/fov"
	"galsynth/pkg/frame"
	"galsynth/pkg/noise"
	"galsynth/pkg/petrosian"
	"galsynth/pkg/psf"
	"galsynth/pkg/rebin"
	"galsynth/pkg/resample"
)

// ErrInputNotFound reports a missing source band or file. Fatal for the run.
var ErrInputNotFound = errors.New("pipeline: input not found")

// Params holds the pipeline configuration for one run.
type Params struct {
	// Band names the photometric band being processed; it keys the
	// background registry.
	Band string

	// Telescope describes the instrument being emulated.
	Telescope frame.Telescope

	// SNLimit calibrates the sky noise; SkySigma, when positive,
	// overrides the derivation.
	SNLimit  float64
	SkySigma float64

	// Seed seeds the noise draw and the background placement.
	Seed uint64

	// PetrosianScaleConstant and CanonicalPixelCount define the
	// normalized output grid.
	PetrosianScaleConstant float64
	CanonicalPixelCount    int

	// PetrosianRadiusKpc, when positive, bypasses the radius estimation.
	PetrosianRadiusKpc float64

	// FixedSeed, OverflowTolerance and MaxBackgroundAttempts control
	// background acceptance.
	FixedSeed             bool
	OverflowTolerance     float64
	MaxBackgroundAttempts int

	// Stage toggles. A disabled stage passes its input plane through.
	EnablePSF        bool
	EnableRebin      bool
	EnableNoise      bool
	EnableFOVResize  bool
	EnableBackground bool

	// RebinToTarget regrids the final plane to CanonicalPixelCount even
	// when FOV normalization is disabled.
	RebinToTarget bool

	// Verbose enables per-stage progress logging.
	Verbose bool

	// Log receives progress lines when Verbose is set; nil means
	// standard output via fmt.
	Log func(format string, args ...interface{})
}

// Result collects the final plane, the per-stage intermediates and the
// scalar diagnostics of one run.
type Result struct {
	// Final is the output plane.
	Final *frame.Plane

	// Intermediate planes, retained for inspection. A disabled stage
	// aliases its input.
	Input    *frame.Plane
	PSF      *frame.Plane
	Rebinned *frame.Plane
	Noisy    *frame.Plane
	FOV      *frame.Plane

	// Petrosian carries the radius estimate and the scanned ratio
	// curve.
	Petrosian petrosian.Result

	// EffectivePSFSigmaPx is the Gaussian sigma actually applied, in
	// working-grid pixels (recomputed when the supersampling cap bites).
	EffectivePSFSigmaPx float64

	// SkySigma is the per-pixel noise sigma that was injected.
	SkySigma float64

	// BGApplied, BGFailed and SeedUsed report the background stage.
	BGApplied bool
	BGFailed  bool
	SeedUsed  uint64
}

// Pipeline runs the realism stages for one band with a fixed configuration.
type Pipeline struct {
	params    Params
	cosmology frame.Cosmology
	registry  background.Registry
}

// New assembles a pipeline. The cosmology descriptor is treated as opaque,
// externally computed input; the registry may be nil when backgrounds are
// disabled or unavailable.
func New(params Params, cosmology frame.Cosmology, registry background.Registry) *Pipeline {
	if params.SNLimit <= 0 {
		params.SNLimit = noise.DefaultSNLimit
	}
	if params.PetrosianScaleConstant <= 0 {
		params.PetrosianScaleConstant = fov.DefaultScaleConstant
	}
	if params.CanonicalPixelCount <= 0 {
		params.CanonicalPixelCount = fov.DefaultTargetPixels
	}
	return &Pipeline{params: params, cosmology: cosmology, registry: registry}
}

// Run executes all enabled stages on the input plane. The input must be in
// the pipeline's working unit (microjansky per steradian).
func (pl *Pipeline) Run(input *frame.Plane) (*Result, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: nil input plane", ErrInputNotFound)
	}
	if input.Unit != frame.UnitMicroJanskyPerSr {
		return nil, fmt.Errorf("pipeline: %w: input is %s, want %s", frame.ErrUnitMismatch, input.Unit, frame.UnitMicroJanskyPerSr)
	}

	p := pl.params
	res := &Result{Input: input, SeedUsed: p.Seed}

	// Stage 1: PSF convolution, supersampling the grid when the kernel
	// would be under-resolved.
	res.PSF = input
	if p.EnablePSF {
		pl.logf("Stage 1: PSF convolution (FWHM %.3g arcsec)...", p.Telescope.PSFFWHMArcsec)
		plane, sigma, err := psf.Convolve(input, p.Telescope.PSFFWHMArcsec)
		if err != nil {
			return nil, err
		}
		res.PSF = plane
		res.EffectivePSFSigmaPx = sigma
		pl.logf("  working grid %d px, effective sigma %.3f px", plane.N, sigma)
	}

	// Stage 2: rebin to the detector pixel scale.
	res.Rebinned = res.PSF
	if p.EnableRebin {
		pl.logf("Stage 2: rebinning to detector scale (%.3g arcsec/px)...", p.Telescope.PixelScaleArcsec)
		plane, err := rebin.ToDetector(res.PSF, p.Telescope.PixelScaleArcsec)
		if err != nil {
			return nil, err
		}
		res.Rebinned = plane
		pl.logf("  detector grid %d px", plane.N)
	}

	// Stage 3: sky noise.
	res.Noisy = res.Rebinned
	if p.EnableNoise {
		pl.logf("Stage 3: injecting sky noise (seed %d)...", p.Seed)
		plane, sigma := noise.Inject(res.Rebinned, noise.Config{
			SNLimit:  p.SNLimit,
			SkySigma: p.SkySigma,
			Seed:     p.Seed,
		})
		res.Noisy = plane
		res.SkySigma = sigma
		pl.logf("  sky sigma %.4g", sigma)
	}

	// Stage 4: Petrosian radius. Reads the noisy plane, transforms
	// nothing. With size normalization disabled the radius defaults to
	// 1.0 kpc.
	if p.EnableFOVResize {
		pl.logf("Stage 4: estimating Petrosian radius...")
		res.Petrosian = petrosian.Estimate(res.Noisy, p.PetrosianRadiusKpc)
		if res.Petrosian.Degenerate {
			pl.logf("  degenerate radial profile: best ratio misses target by %.3f", res.Petrosian.RatioDelta)
		}
		pl.logf("  r_petro %.3f kpc (%.2f px)", res.Petrosian.RadiusKpc, res.Petrosian.RadiusPixels)
	} else {
		res.Petrosian = petrosian.Result{
			RadiusKpc:    1.0,
			RadiusPixels: 1.0 / res.Noisy.PixelScaleKpc,
		}
	}

	// Stage 5: field-of-view normalization onto the canonical grid.
	res.FOV = res.Noisy
	if p.EnableFOVResize {
		pl.logf("Stage 5: normalizing field of view (k=%.3g, %d px)...", p.PetrosianScaleConstant, p.CanonicalPixelCount)
		plane, err := fov.Normalize(res.Noisy, res.Petrosian.RadiusKpc, p.CanonicalPixelCount, p.PetrosianScaleConstant)
		if err != nil {
			return nil, err
		}
		res.FOV = plane
	}

	// Stage 6: background compositing.
	res.Final = res.FOV
	if p.EnableBackground {
		pl.logf("Stage 6: compositing background for band %q...", p.Band)
		bg, err := background.Composite(res.FOV, p.Band, pl.registry, background.Options{
			Seed:              p.Seed,
			FixedSeed:         p.FixedSeed,
			OverflowTolerance: p.OverflowTolerance,
			MaxAttempts:       p.MaxBackgroundAttempts,
		})
		if err != nil {
			return nil, err
		}
		res.Final = bg.Plane
		res.BGApplied = bg.Applied
		res.BGFailed = bg.BGFailed
		res.SeedUsed = bg.SeedUsed
		if !bg.Applied {
			pl.logf("  no tile registered, passing through")
		} else {
			pl.logf("  accepted seed %d (bg_failed=%v)", bg.SeedUsed, bg.BGFailed)
		}
	}

	// Optional final regrid onto the canonical pixel count, for callers
	// that skip FOV normalization but still want a fixed output shape.
	if p.RebinToTarget && res.Final.N != p.CanonicalPixelCount {
		pl.logf("Final regrid to %d px", p.CanonicalPixelCount)
		data, err := resample.RegridSquare(res.Final.Data, res.Final.N, p.CanonicalPixelCount)
		if err != nil {
			return nil, err
		}
		res.Final = res.Final.WithResized(data, p.CanonicalPixelCount)
	}

	return res, nil
}

// Cosmology returns the descriptor the pipeline was built with.
func (pl *Pipeline) Cosmology() frame.Cosmology { return pl.cosmology }

func (pl *Pipeline) logf(format string, args ...interface{}) {
	if !pl.params.Verbose {
		return
	}
	if pl.params.Log != nil {
		pl.params.Log(format, args...)
		return
	}
	fmt.Printf(format+"\n", args...)
}
