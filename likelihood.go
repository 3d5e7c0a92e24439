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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/stat/distuv"
)

// MatchLikelihood returns the likelihood that a reference value w, with local
// spatial uncertainty wsd, was the value the tag observed as [minT, maxT].
//
// Values outside [minT, maxT] (or missing) have zero likelihood. Otherwise the
// tag measurement is modelled as a normal distribution with mean at the
// centre of the interval and standard deviation of half its width, and the
// result is the probability mass of that distribution over
// [w-h, w+h], where h is wsd but never less than a quarter of the interval
// width. A NaN wsd counts as zero. The result is always in [0, 1], and
// cells with the same value get the same likelihood when their
// uncertainties are both below that resolution.
//
// MatchLikelihood has no side effects; it is safe to call from any number of
// goroutines.
func MatchLikelihood(w, wsd, minT, maxT float64) float64 {
	if math.IsNaN(w) || math.IsNaN(minT) || math.IsNaN(maxT) || w < minT || w > maxT {
		return 0
	}
	if math.IsNaN(wsd) {
		wsd = 0
	}
	mid := (minT + maxT) / 2
	spread := (maxT - minT) / 4
	if spread == 0 {
		// All of the mass is at w.
		return 1
	}
	h := math.Max(math.Abs(wsd), spread)
	n := distuv.Normal{Mu: mid, Sigma: 2 * spread}
	return n.CDF(w+h) - n.CDF(w-h)
}

// Likelihood applies MatchLikelihood to every cell of w, using the
// corresponding cell of wsd as the uncertainty. w and wsd must have the
// same shape.
func Likelihood(w, wsd *sparse.DenseArray, minT, maxT float64) (*sparse.DenseArray, error) {
	if len(w.Elements) != len(wsd.Elements) {
		return nil, fmt.Errorf("envlik: likelihood: values have %d cells but uncertainties have %d: %w",
			len(w.Elements), len(wsd.Elements), ErrDimensionMismatch)
	}
	o := sparse.ZerosDense(w.Shape...)
	for i, v := range w.Elements {
		o.Elements[i] = MatchLikelihood(v, wsd.Elements[i], minT, maxT)
	}
	return o, nil
}
