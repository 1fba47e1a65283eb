// Package cosmo computes the cosmological distances the pipeline consumes.
// It is a pure, stateless collaborator: the pipeline itself never recomputes
// distances, it only reads the resulting descriptor.
package cosmo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"galsynth/pkg/frame"
)

// Default flat ΛCDM parameters.
const (
	DefaultH0     = 70.4
	DefaultOmegaM = 0.2726
	DefaultOmegaV = 0.7274
)

const (
	speedOfLightKms = 299792.458

	// kpcPerArcsecFactor converts an angular diameter distance in Mpc to
	// kpc per arcsecond (206264.8 arcsec per radian, Mpc to kpc).
	kpcPerArcsecFactor = 206.264806

	// quadraturePoints for the comoving distance integral.
	quadraturePoints = 100
)

// Calc evaluates luminosity distance, angular diameter distance (both in
// Mpc) and the physical scale in kpc per arcsecond for the given redshift
// and density parameters, including the standard radiation term and
// curvature correction.
func Calc(z, h0, omegaM, omegaV float64) (lumDistMpc, angDiamDistMpc, kpcPerArcsec float64, err error) {
	if z < 0 {
		return 0, 0, 0, fmt.Errorf("cosmo: redshift must be non-negative, got %g", z)
	}
	if h0 <= 0 {
		return 0, 0, 0, fmt.Errorf("cosmo: H0 must be positive, got %g", h0)
	}
	if z == 0 {
		return 0, 0, 0, nil
	}

	h := h0 / 100
	omegaR := 4.165e-5 / (h * h)
	omegaK := 1 - omegaM - omegaR - omegaV

	az := 1 / (1 + z)
	integrand := func(a float64) float64 {
		adot := math.Sqrt(omegaK + omegaM/a + omegaR/(a*a) + omegaV*a*a)
		return 1 / (a * adot)
	}
	dcmr := quad.Fixed(integrand, az, 1, quadraturePoints, nil, 0)

	// Curvature correction: sinh for open, sin for closed geometries.
	ratio := 1.0
	x := math.Sqrt(math.Abs(omegaK)) * dcmr
	if x > 0.1 {
		if omegaK > 0 {
			ratio = math.Sinh(x) / x
		} else {
			ratio = math.Sin(x) / x
		}
	} else {
		// Series expansion near flatness avoids 0/0.
		y := x * x
		if omegaK < 0 {
			y = -y
		}
		ratio = 1 + y/6 + y*y/120
	}

	hubbleDistMpc := speedOfLightKms / h0
	angDiamDistMpc = az * ratio * dcmr * hubbleDistMpc
	lumDistMpc = angDiamDistMpc / (az * az)
	kpcPerArcsec = angDiamDistMpc / kpcPerArcsecFactor
	return lumDistMpc, angDiamDistMpc, kpcPerArcsec, nil
}

// Descriptor assembles the opaque cosmology descriptor the pipeline reads.
func Descriptor(z, h0, omegaM, omegaV float64) (frame.Cosmology, error) {
	dl, da, ps, err := Calc(z, h0, omegaM, omegaV)
	if err != nil {
		return frame.Cosmology{}, err
	}
	return frame.Cosmology{
		Redshift:       z,
		H0:             h0,
		OmegaM:         omegaM,
		OmegaV:         omegaV,
		LumDistMpc:     dl,
		AngDiamDistMpc: da,
		KpcPerArcsec:   ps,
	}, nil
}
