// Package noise injects per-pixel independent Gaussian sky noise calibrated
// to a target integrated signal-to-noise ratio.
package noise

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"galsynth/pkg/frame"
)

// DefaultSNLimit is the integrated signal-to-noise the sky sigma is
// calibrated to when no explicit sigma is given.
const DefaultSNLimit = 25.0

// Config controls one noise injection.
type Config struct {
	// SNLimit is the target integrated signal-to-noise; used only when
	// SkySigma is zero. Zero means DefaultSNLimit.
	SNLimit float64

	// SkySigma, when positive, is used directly instead of being derived
	// from SNLimit.
	SkySigma float64

	// Seed seeds the pseudo-random source. The same seed applied to the
	// same input produces a bit-identical output plane.
	Seed uint64
}

// SkySigmaFor derives the per-pixel sky sigma that yields the requested
// integrated signal-to-noise: sqrt((total_flux/sn)^2 / n_pixels^2).
func SkySigmaFor(p *frame.Plane, snLimit float64) float64 {
	total := p.TotalFlux()
	area := float64(p.N) * float64(p.N)
	return math.Sqrt((total / snLimit) * (total / snLimit) / (area * area))
}

// Inject adds one independent zero-mean Gaussian sample per pixel and
// returns the new plane together with the sky sigma that was applied.
func Inject(p *frame.Plane, cfg Config) (*frame.Plane, float64) {
	sigma := cfg.SkySigma
	if sigma <= 0 {
		snLimit := cfg.SNLimit
		if snLimit <= 0 {
			snLimit = DefaultSNLimit
		}
		sigma = SkySigmaFor(p, snLimit)
	}

	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewSource(cfg.Seed)}
	data := make([]float64, len(p.Data))
	for i, v := range p.Data {
		data[i] = v + dist.Rand()
	}
	return p.WithData(data), sigma
}
