// Package resample implements the flux-preserving (approximately) linear
// regridder used by every pipeline stage that changes pixel count.
//
// The algorithm is a separable per-axis linear interpolation: new index j on
// an axis maps to old coordinate (old/new)*j, and any mapped coordinate that
// falls outside the original support is replaced with zero. Down-sampling
// uses the same interpolation, not box averaging, so resampling is only
// approximately flux conserving; this is a known resolution/aliasing caveat
// of the method and is preserved deliberately.
package resample

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch reports a regrid call whose target shape does not
// match the rank of the source shape, or whose dimensions are invalid. It is
// a programming error, not a data condition.
var ErrDimensionMismatch = errors.New("resample: dimension mismatch")

// axisMap precomputes, for one output axis, the source interpolation index,
// fractional weight and support flag of every destination index.
type axisMap struct {
	idx    []int
	frac   []float64
	inside []bool
}

// newAxisMap builds the affine index mapping oldDim/newDim * j for an axis.
func newAxisMap(oldDim, newDim int) axisMap {
	m := axisMap{
		idx:    make([]int, newDim),
		frac:   make([]float64, newDim),
		inside: make([]bool, newDim),
	}
	ratio := float64(oldDim) / float64(newDim)
	limit := float64(oldDim - 1)
	for j := 0; j < newDim; j++ {
		coord := ratio * float64(j)
		if coord < 0 || coord > limit {
			// Zero-fill extrapolation: the coordinate has no support
			// in the source grid. This happens on the trailing edge
			// of every magnification and must not be clamped.
			continue
		}
		i := int(math.Floor(coord))
		if i >= oldDim-1 {
			i = oldDim - 1
		}
		m.idx[j] = i
		m.frac[j] = coord - float64(i)
		m.inside[j] = true
	}
	return m
}

// interpolate resolves one destination sample from a source line with the
// given stride.
func (m axisMap) interpolate(src []float64, base, stride, j int) float64 {
	if !m.inside[j] {
		return 0
	}
	i := m.idx[j]
	t := m.frac[j]
	a := src[base+i*stride]
	if t == 0 {
		return a
	}
	b := src[base+(i+1)*stride]
	return a + t*(b-a)
}

// Regrid resamples src, whose dimensions are srcShape, onto a new grid of
// dstShape. Source and target must have the same rank (1 or 2) and positive
// dimensions; otherwise ErrDimensionMismatch is returned. The result is a
// freshly allocated array of the target shape.
func Regrid(src []float64, srcShape, dstShape []int) ([]float64, error) {
	if len(srcShape) != len(dstShape) {
		return nil, fmt.Errorf("%w: source rank %d, target rank %d", ErrDimensionMismatch, len(srcShape), len(dstShape))
	}
	size := 1
	for k := range srcShape {
		if srcShape[k] <= 0 || dstShape[k] <= 0 {
			return nil, fmt.Errorf("%w: dimensions must be positive (source %v, target %v)", ErrDimensionMismatch, srcShape, dstShape)
		}
		size *= srcShape[k]
	}
	if len(src) != size {
		return nil, fmt.Errorf("%w: source has %d samples, shape %v wants %d", ErrDimensionMismatch, len(src), srcShape, size)
	}

	switch len(srcShape) {
	case 1:
		return regrid1D(src, srcShape[0], dstShape[0]), nil
	case 2:
		return regrid2D(src, srcShape[0], srcShape[1], dstShape[0], dstShape[1]), nil
	default:
		return nil, fmt.Errorf("%w: rank %d not supported", ErrDimensionMismatch, len(srcShape))
	}
}

// RegridSquare resamples a square n-by-n grid onto an m-by-m grid.
func RegridSquare(src []float64, n, m int) ([]float64, error) {
	return Regrid(src, []int{n, n}, []int{m, m})
}

func regrid1D(src []float64, oldDim, newDim int) []float64 {
	m := newAxisMap(oldDim, newDim)
	out := make([]float64, newDim)
	for j := 0; j < newDim; j++ {
		out[j] = m.interpolate(src, 0, 1, j)
	}
	return out
}

func regrid2D(src []float64, oldH, oldW, newH, newW int) []float64 {
	// Interpolate along the fast axis first, then the slow axis. The
	// axes are independent, so the order does not affect the result.
	colMap := newAxisMap(oldW, newW)
	mid := make([]float64, oldH*newW)
	for y := 0; y < oldH; y++ {
		base := y * oldW
		row := mid[y*newW:]
		for j := 0; j < newW; j++ {
			row[j] = colMap.interpolate(src, base, 1, j)
		}
	}

	rowMap := newAxisMap(oldH, newH)
	out := make([]float64, newH*newW)
	for i := 0; i < newH; i++ {
		row := out[i*newW:]
		for x := 0; x < newW; x++ {
			row[x] = rowMap.interpolate(mid, x, newW, i)
		}
	}
	return out
}
