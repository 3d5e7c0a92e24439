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
	"gonum.org/v1/gonum/floats"
)

// Normalize scales a in place so that its maximum is 1. Missing values
// become 0. It returns false and sets every value to 0 if a has no finite
// positive maximum.
func Normalize(a *sparse.DenseArray) bool {
	for i, v := range a.Elements {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			a.Elements[i] = 0
		}
	}
	if len(a.Elements) == 0 {
		return false
	}
	max := floats.Max(a.Elements)
	if !(max > 0) {
		for i := range a.Elements {
			a.Elements[i] = 0
		}
		return false
	}
	floats.Scale(1/max, a.Elements)
	return true
}

// Stack holds one normalized likelihood grid per date of the master
// date vector. Its data is shaped [nslots, ny, nx].
type Stack struct {
	Shape
	Data *sparse.DenseArray
}

// NewStack returns an all-zero stack with n slots.
func NewStack(s Shape, n int) *Stack {
	return &Stack{Shape: s, Data: sparse.ZerosDense(n, s.Ny, s.Nx)}
}

// Len returns the number of slots in the stack.
func (s *Stack) Len() int { return s.Data.Shape[0] }

// At returns the likelihood at cell (x, y) in the given slot.
func (s *Stack) At(x, y, slot int) float64 { return s.Data.Get(slot, y, x) }

// Slot returns a copy of the given slot as a [ny, nx] array.
func (s *Stack) Slot(slot int) *sparse.DenseArray {
	n := s.Nx * s.Ny
	o := sparse.ZerosDense(s.Ny, s.Nx)
	copy(o.Elements, s.Data.Elements[slot*n:(slot+1)*n])
	return o
}

// Set stores a [ny, nx] grid in the given slot.
func (s *Stack) Set(slot int, a *sparse.DenseArray) error {
	n := s.Nx * s.Ny
	if len(a.Elements) != n {
		return fmt.Errorf("envlik: stack slot %d: grid has %d cells but stack shape is %s: %w",
			slot, len(a.Elements), s.Shape, ErrDimensionMismatch)
	}
	if slot < 0 || slot >= s.Len() {
		return fmt.Errorf("envlik: stack slot %d is out of range [0, %d)", slot, s.Len())
	}
	copy(s.Data.Elements[slot*n:(slot+1)*n], a.Elements)
	return nil
}

// Assemble returns a stack with one slot per master date, where the grid
// for each processing day is placed at its slot and every other slot is
// zero. grids and slots are parallel; a nil grid leaves its slot zero.
func Assemble(s Shape, nslots int, grids []*sparse.DenseArray, slots []int) (*Stack, error) {
	if len(grids) != len(slots) {
		return nil, fmt.Errorf("envlik: assembling stack: %d grids but %d slots: %w",
			len(grids), len(slots), ErrDimensionMismatch)
	}
	st := NewStack(s, nslots)
	for i, g := range grids {
		if g == nil {
			continue
		}
		if err := st.Set(slots[i], g); err != nil {
			return nil, err
		}
	}
	return st, nil
}
