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
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"
)

// GridField holds reference environmental data for a single date.
// Data is shaped [nz, ny, nx] for depth-layered fields or [ny, nx] for
// surface fields. Missing values are NaN.
type GridField struct {
	Date time.Time

	// Lon and Lat are the cell-centre coordinates along the x and y axes.
	Lon, Lat []float64

	// Depth holds the depth [m] of each layer. It is empty for
	// surface fields.
	Depth []float64

	Data *sparse.DenseArray
}

// Nx is the number of cells in the West-East direction.
func (g *GridField) Nx() int { return g.Data.Shape[len(g.Data.Shape)-1] }

// Ny is the number of cells in the South-North direction.
func (g *GridField) Ny() int { return g.Data.Shape[len(g.Data.Shape)-2] }

// Nz is the number of depth layers; surface fields have one.
func (g *GridField) Nz() int {
	if len(g.Data.Shape) == 3 {
		return g.Data.Shape[0]
	}
	return 1
}

// Shape returns the horizontal shape of the field.
func (g *GridField) Shape() Shape { return Shape{Nx: g.Nx(), Ny: g.Ny()} }

// Layer returns a copy of depth layer k as a [ny, nx] array.
func (g *GridField) Layer(k int) *sparse.DenseArray {
	ny, nx := g.Ny(), g.Nx()
	o := sparse.ZerosDense(ny, nx)
	if len(g.Data.Shape) == 2 {
		copy(o.Elements, g.Data.Elements)
		return o
	}
	copy(o.Elements, g.Data.Elements[k*ny*nx:(k+1)*ny*nx])
	return o
}

// check makes sure the field is internally consistent.
func (g *GridField) check() error {
	if g.Data == nil {
		return fmt.Errorf("envlik: reference field for %s has no data", g.Date.Format(dateFormat))
	}
	switch len(g.Data.Shape) {
	case 2:
	case 3:
		if len(g.Depth) != g.Data.Shape[0] {
			return fmt.Errorf("envlik: reference field for %s has %d layers but %d depths: %w",
				g.Date.Format(dateFormat), g.Data.Shape[0], len(g.Depth), ErrDimensionMismatch)
		}
	default:
		return fmt.Errorf("envlik: reference field for %s must be 2 or 3 dimensional, not %d: %w",
			g.Date.Format(dateFormat), len(g.Data.Shape), ErrDimensionMismatch)
	}
	if len(g.Lon) != g.Nx() || len(g.Lat) != g.Ny() {
		return fmt.Errorf("envlik: reference field for %s is %dx%d but axes are %dx%d: %w",
			g.Date.Format(dateFormat), g.Nx(), g.Ny(), len(g.Lon), len(g.Lat), ErrDimensionMismatch)
	}
	return nil
}

// Shape is the horizontal shape of every grid in a run.
type Shape struct {
	Nx, Ny int
}

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Nx, s.Ny) }

// Accessor provides reference data. Implementations must be safe for
// concurrent use.
type Accessor interface {
	// Fetch returns the reference field for the given date. If there is no
	// data for the date, the returned error should wrap ErrDataUnavailable.
	Fetch(ctx context.Context, date time.Time) (*GridField, error)

	// Dates returns the dates for which reference data exists, in
	// increasing order.
	Dates() ([]time.Time, error)
}

// dateFormat is used in messages.
const dateFormat = "2006-01-02"

// nearestLevel returns the index of the level closest to depth.
func nearestLevel(levels []float64, depth float64) int {
	best, bestD := -1, math.Inf(1)
	for i, l := range levels {
		if d := (l - depth) * (l - depth); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
