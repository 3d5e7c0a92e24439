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
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindowDegrees is the approximate latitude extent of the window used
// to estimate spatial variability.
const DefaultWindowDegrees = 0.25

// WindowSize returns the edge length, in cells, of a square window spanning
// about the given number of degrees along the latitude axis lat.
// The result is odd and at least 3.
func WindowSize(lat []float64, degrees float64) int {
	k := 3
	if len(lat) > 1 {
		d := make([]float64, len(lat)-1)
		for i := range d {
			d[i] = math.Abs(lat[i+1] - lat[i])
		}
		if res := floats.Sum(d) / float64(len(d)); res > 0 {
			k = int(math.Ceil(degrees / res))
		}
	}
	return oddWindow(k)
}

// oddWindow forces k to be odd and at least 3.
func oddWindow(k int) int {
	if k < 3 {
		return 3
	}
	if k%2 == 0 {
		k++
	}
	return k
}

// FocalStdDev returns an array of the same shape as a where each cell holds
// the sample standard deviation of the defined (non-NaN) values in the k×k
// window centred on it. Windows are truncated at the grid edges. Cells with
// fewer than two defined values in their window are NaN. Arrays with three
// dimensions are treated as a stack of [ny, nx] layers. k is forced to be odd
// and at least 3.
func FocalStdDev(a *sparse.DenseArray, k int) *sparse.DenseArray {
	k = oddWindow(k)
	o := sparse.ZerosDense(a.Shape...)
	nd := len(a.Shape)
	ny, nx := a.Shape[nd-2], a.Shape[nd-1]
	nz := 1
	if nd == 3 {
		nz = a.Shape[0]
	}
	half := k / 2
	buf := make([]float64, 0, k*k)
	for l := 0; l < nz; l++ {
		off := l * ny * nx
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				buf = buf[:0]
				for jj := max(j-half, 0); jj <= min(j+half, ny-1); jj++ {
					for ii := max(i-half, 0); ii <= min(i+half, nx-1); ii++ {
						if v := a.Elements[off+jj*nx+ii]; !math.IsNaN(v) {
							buf = append(buf, v)
						}
					}
				}
				sd := math.NaN()
				if len(buf) > 1 {
					sd = stat.StdDev(buf, nil)
				}
				o.Elements[off+j*nx+i] = sd
			}
		}
	}
	return o
}
