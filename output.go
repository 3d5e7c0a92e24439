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
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

const (
	likelihoodVar = "likelihood"
	timeUnits     = "days since 1970-01-01 00:00:00"
	day           = 24 * time.Hour
)

// WriteNCF writes the stack to NetCDF file w with dimensions time, lat, and
// lon. dates must have one entry per slot. If lon or lat are nil, cell
// indices are written instead.
func (s *Stack) WriteNCF(w *os.File, dates []time.Time, lon, lat []float64) error {
	if len(dates) != s.Len() {
		return fmt.Errorf("envlik: writing stack: %d dates for %d slots: %w", len(dates), s.Len(), ErrDimensionMismatch)
	}
	lon, lat = axisOrIndex(lon, s.Nx), axisOrIndex(lat, s.Ny)
	if len(lon) != s.Nx || len(lat) != s.Ny {
		return fmt.Errorf("envlik: writing stack: axes are %dx%d but stack is %s: %w",
			len(lon), len(lat), s.Shape, ErrDimensionMismatch)
	}
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{s.Len(), s.Ny, s.Nx})
	h.AddAttribute("", "comment", "envlik daily environmental likelihood surfaces")
	h.AddAttribute("", "envlik_version", Version)

	h.AddVariable(likelihoodVar, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(likelihoodVar, "description", "Likelihood normalized to a daily maximum of 1")
	h.AddAttribute(likelihoodVar, "units", "1")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("envlik: writing stack: %v", err)
	}
	t := make([]float64, len(dates))
	for i, d := range dates {
		t[i] = float64(Day(d).Unix()) / day.Seconds()
	}
	if err := writeNCF(f, likelihoodVar, s.Data); err != nil {
		return fmt.Errorf("envlik: writing variable %s: %v", likelihoodVar, err)
	}
	for name, v := range map[string][]float64{"lon": lon, "lat": lat, "time": t} {
		if err := writeAxis(f, name, v); err != nil {
			return fmt.Errorf("envlik: writing variable %s: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// ReadStackNCF reads a stack written by WriteNCF.
func ReadStackNCF(rw cdf.ReaderWriterAt) (s *Stack, dates []time.Time, lon, lat []float64, err error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %v", err)
	}
	data, err := readNCF(f, likelihoodVar, "time")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %v", err)
	}
	if len(data.Shape) != 3 {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %s has %d dimensions; it should have 3: %w",
			likelihoodVar, len(data.Shape), ErrDimensionMismatch)
	}
	s = &Stack{Shape: Shape{Nx: data.Shape[2], Ny: data.Shape[1]}, Data: data}
	if lon, err = readAxis(f, "lon"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %v", err)
	}
	if lat, err = readAxis(f, "lat"); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %v", err)
	}
	t, err := readAxis(f, "time")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("envlik: reading stack: %v", err)
	}
	dates = make([]time.Time, len(t))
	for i, v := range t {
		dates[i] = time.Unix(int64(v*day.Seconds()+0.5), 0).UTC()
	}
	return s, dates, lon, lat, nil
}

func axisOrIndex(axis []float64, n int) []float64 {
	if axis != nil {
		return axis
	}
	o := make([]float64, n)
	for i := range o {
		o[i] = float64(i)
	}
	return o
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	_, err := f.Writer(name, start, end).Write(data32)
	return err
}

func writeAxis(f *cdf.File, name string, v []float64) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	_, err := f.Writer(name, start, end).Write(v)
	return err
}
