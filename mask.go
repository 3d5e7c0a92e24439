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

	"github.com/ctessum/geom"
)

// Mask marks grid cells, such as land, that are excluded from the
// likelihood surface.
type Mask struct {
	Shape
	masked []bool
}

// NewMask returns a mask of the given shape with no cells masked.
func NewMask(s Shape) *Mask {
	return &Mask{Shape: s, masked: make([]bool, s.Nx*s.Ny)}
}

// Set sets whether cell (x, y) is masked.
func (m *Mask) Set(x, y int, masked bool) { m.masked[y*m.Nx+x] = masked }

// Masked reports whether cell (x, y) is masked.
func (m *Mask) Masked(x, y int) bool { return m.masked[y*m.Nx+x] }

// Count returns the number of masked cells.
func (m *Mask) Count() int {
	var n int
	for _, v := range m.masked {
		if v {
			n++
		}
	}
	return n
}

// MaskFromPolygon returns a mask where every cell whose centre is inside
// or on the edge of poly is masked.
func MaskFromPolygon(lon, lat []float64, poly geom.Polygonal) *Mask {
	m := NewMask(Shape{Nx: len(lon), Ny: len(lat)})
	for y, py := range lat {
		for x, px := range lon {
			if (geom.Point{X: px, Y: py}).Within(poly) != geom.Outside {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// MaskFromField returns a mask where every cell that is missing at every
// depth of f is masked.
func MaskFromField(f *GridField) *Mask {
	m := NewMask(Shape{Nx: f.Nx(), Ny: f.Ny()})
	for i := range m.masked {
		m.masked[i] = true
	}
	for k := 0; k < f.Nz(); k++ {
		for i, v := range f.Layer(k).Elements {
			if !math.IsNaN(v) {
				m.masked[i] = false
			}
		}
	}
	return m
}

// Apply sets the masked cells of f to missing at every depth.
func (m *Mask) Apply(f *GridField) error {
	if f.Nx() != m.Nx || f.Ny() != m.Ny {
		return fmt.Errorf("envlik: applying mask: mask shape %s does not match field shape %s: %w",
			m.Shape, f.Shape(), ErrDimensionMismatch)
	}
	n := m.Nx * m.Ny
	for k := 0; k < f.Nz(); k++ {
		layer := f.Data.Elements[k*n : (k+1)*n]
		for i, masked := range m.masked {
			if masked {
				layer[i] = math.NaN()
			}
		}
	}
	return nil
}

// Union masks every cell of m that is masked in o.
func (m *Mask) Union(o *Mask) error {
	if m.Shape != o.Shape {
		return fmt.Errorf("envlik: combining masks of shape %s and %s: %w",
			m.Shape, o.Shape, ErrDimensionMismatch)
	}
	for i, masked := range o.masked {
		m.masked[i] = m.masked[i] || masked
	}
	return nil
}

// zero sets the masked cells of a likelihood grid to zero.
func (m *Mask) zero(lik []float64) {
	for i, masked := range m.masked {
		if masked {
			lik[i] = 0
		}
	}
}
