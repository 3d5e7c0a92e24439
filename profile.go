/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

package envlik

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DefaultFitSpan is the default fraction of samples included in each local
// regression neighbourhood.
const DefaultFitSpan = 0.7

// ProfileBound is the estimated temperature range at one reference depth level.
type ProfileBound struct {
	Level     int     // index of the level in the reference depth axis
	Depth     float64 // m
	Low, High float64
}

// FitProfile reconstructs a depth profile from one day's tag samples.
// Each sample depth is snapped to the closest reference depth level; for every
// distinct snapped level, local regressions of Min~depth and Max~depth give
// a point estimate and standard error, and the bounds are widened by
// se·sqrt(n), where n is the number of distinct levels.
// span is the local regression neighbourhood fraction; if it is <= 0,
// DefaultFitSpan is used. The result is sorted by depth.
func FitProfile(samples []TagSample, levels []float64, span float64) ([]ProfileBound, error) {
	if span <= 0 {
		span = DefaultFitSpan
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("envlik: fitting profile: no reference depth levels: %w", ErrFitFailure)
	}
	var depth, lo, hi []float64
	snapped := make(map[int]struct{})
	for _, s := range samples {
		if !s.HasDepth || math.IsNaN(s.Depth) || math.IsNaN(s.Min) || math.IsNaN(s.Max) {
			continue
		}
		depth = append(depth, s.Depth)
		lo = append(lo, s.Min)
		hi = append(hi, s.Max)
		snapped[nearestLevel(levels, s.Depth)] = struct{}{}
	}
	if distinct(depth) < 2 {
		return nil, fmt.Errorf("envlik: fitting profile: %d samples at %d distinct depths: %w",
			len(depth), distinct(depth), ErrFitFailure)
	}
	loFit, err := newLocalFit(depth, lo, span)
	if err != nil {
		return nil, err
	}
	hiFit, err := newLocalFit(depth, hi, span)
	if err != nil {
		return nil, err
	}

	idx := make([]int, 0, len(snapped))
	for k := range snapped {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	widen := math.Sqrt(float64(len(idx)))
	o := make([]ProfileBound, len(idx))
	for i, k := range idx {
		lf, lse, err := loFit.predict(levels[k])
		if err != nil {
			return nil, err
		}
		hf, hse, err := hiFit.predict(levels[k])
		if err != nil {
			return nil, err
		}
		b := ProfileBound{Level: k, Depth: levels[k], Low: lf - lse*widen, High: hf + hse*widen}
		if b.Low > b.High {
			b.Low, b.High = b.High, b.Low
		}
		o[i] = b
	}
	return o, nil
}

// distinct returns the number of distinct values in x.
func distinct(x []float64) int {
	m := make(map[float64]struct{})
	for _, v := range x {
		m[v] = struct{}{}
	}
	return len(m)
}

// localFit is a local polynomial regression of y on x with a tricube kernel
// and a nearest-neighbour bandwidth.
type localFit struct {
	x, y   []float64
	span   float64
	degree int
	sigma  float64 // residual standard error
}

func newLocalFit(x, y []float64, span float64) (*localFit, error) {
	f := &localFit{x: x, y: y, span: span, degree: 2}
	if d := distinct(x) - 1; d < f.degree {
		f.degree = d
	}
	n := len(x)
	// Operator rows at the sample locations give the fitted values and
	// the equivalent degrees of freedom.
	var rss, tr, tr2 float64
	for i := range x {
		l, err := f.weights(x[i])
		if err != nil {
			return nil, err
		}
		var fit float64
		for j, lj := range l {
			fit += lj * y[j]
			tr2 += lj * lj
		}
		tr += l[i]
		rss += (y[i] - fit) * (y[i] - fit)
	}
	df := float64(n) - 2*tr + tr2
	if df < 1 {
		df = 1
	}
	f.sigma = math.Sqrt(rss / df)
	return f, nil
}

// predict returns the fitted value and its standard error at x0.
func (f *localFit) predict(x0 float64) (fit, se float64, err error) {
	l, err := f.weights(x0)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	var ss float64
	for j, lj := range l {
		fit += lj * f.y[j]
		ss += lj * lj
	}
	return fit, f.sigma * math.Sqrt(ss), nil
}

// weights returns the row of the smoothing operator at x0, so that the fit
// at x0 is the dot product of the row with y.
func (f *localFit) weights(x0 float64) ([]float64, error) {
	n := len(f.x)
	p := f.degree + 1
	h := f.bandwidth(x0)

	w := make([]float64, n)
	for i, xi := range f.x {
		u := math.Abs(xi-x0) / h
		if u < 1 {
			w[i] = math.Pow(1-u*u*u, 3)
		}
	}

	// Normal equations XᵀWX for the design centred at x0.
	X := mat.NewDense(n, p, nil)
	for i, xi := range f.x {
		v := 1.0
		for k := 0; k < p; k++ {
			X.Set(i, k, v)
			v *= xi - x0
		}
	}
	xtwx := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += w[i] * X.At(i, a) * X.At(i, b)
			}
			xtwx.SetSym(a, b, s)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(xtwx); !ok {
		return nil, fmt.Errorf("envlik: local regression at depth %g is singular: %w", x0, ErrFitFailure)
	}
	e1 := mat.NewVecDense(p, nil)
	e1.SetVec(0, 1)
	var z mat.VecDense
	if err := chol.SolveVecTo(&z, e1); err != nil {
		return nil, fmt.Errorf("envlik: local regression at depth %g: %v: %w", x0, err, ErrFitFailure)
	}
	l := make([]float64, n)
	for i := 0; i < n; i++ {
		l[i] = w[i] * mat.Dot(X.RowView(i), &z)
	}
	return l, nil
}

// bandwidth returns the kernel half width at x0: the distance to the
// nearest span·n samples, widened if needed so that at least degree+1
// distinct sample locations receive positive weight.
func (f *localFit) bandwidth(x0 float64) float64 {
	n := len(f.x)
	d := make([]float64, n)
	for i, xi := range f.x {
		d[i] = math.Abs(xi - x0)
	}
	sort.Float64s(d)
	k := int(math.Ceil(f.span * float64(n)))
	if k < 1 {
		k = 1
	} else if k > n {
		k = n
	}
	h := d[k-1]

	// Distance to the (degree+1)th distinct location.
	var seen int
	for i, di := range d {
		if i == 0 || di != d[i-1] {
			seen++
		}
		if seen == f.degree+1 {
			if di > h {
				h = di
			}
			break
		}
	}
	if h == 0 {
		h = 1
	}
	return h * 1.1
}
