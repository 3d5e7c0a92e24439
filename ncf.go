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
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// NCFAccessor reads reference data from one NetCDF file per day.
type NCFAccessor struct {
	// FileTemplate is the path to the reference files, where the
	// [DATE] wildcard is replaced by the date formatted as DateFormat.
	FileTemplate string
	DateFormat   string

	// Start and End bound the dates searched for files, inclusive.
	Start, End time.Time

	// ValueVar is the variable holding the environmental values, which
	// are dimensioned [depth, lat, lon] or [lat, lon], optionally with
	// a leading time or record dimension of which the first record is read.
	ValueVar string

	// LonVar and LatVar are the one-dimensional coordinate variables.
	LonVar, LatVar string

	// DepthVar is the one-dimensional depth coordinate variable [m].
	// It is ignored for two-dimensional value variables.
	DepthVar string
}

// path returns the file holding the data for date.
func (a *NCFAccessor) path(date time.Time) string {
	return strings.Replace(a.FileTemplate, "[DATE]", date.Format(a.DateFormat), -1)
}

// Dates returns the dates between Start and End for which a reference file
// exists.
func (a *NCFAccessor) Dates() ([]time.Time, error) {
	if a.Start.IsZero() || a.End.IsZero() {
		return nil, fmt.Errorf("envlik: reference start and end dates must be set")
	}
	var o []time.Time
	for _, d := range DailyDates(a.Start, a.End) {
		_, err := os.Stat(a.path(d))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("envlik: checking reference file: %v", err)
		}
		o = append(o, d)
	}
	return o, nil
}

// Fetch reads the reference field for date. It returns an error wrapping
// ErrDataUnavailable if the file for the date does not exist.
func (a *NCFAccessor) Fetch(ctx context.Context, date time.Time) (*GridField, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file := a.path(date)
	f, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("envlik: reference file %s: %w", file, ErrDataUnavailable)
	} else if err != nil {
		return nil, fmt.Errorf("envlik: opening reference file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("envlik: opening reference file %s: %v", file, err)
	}

	g := &GridField{Date: Day(date)}
	var depthDim string
	if a.DepthVar != "" {
		if d := ff.Header.Dimensions(a.DepthVar); len(d) == 1 {
			depthDim = d[0]
		}
	}
	if g.Data, err = readNCF(ff, a.ValueVar, depthDim); err != nil {
		return nil, fmt.Errorf("envlik: reading %s: %v", file, err)
	}
	if g.Lon, err = readAxis(ff, a.LonVar); err != nil {
		return nil, fmt.Errorf("envlik: reading %s: %v", file, err)
	}
	if g.Lat, err = readAxis(ff, a.LatVar); err != nil {
		return nil, fmt.Errorf("envlik: reading %s: %v", file, err)
	}
	if len(g.Data.Shape) == 3 {
		if a.DepthVar == "" {
			return nil, fmt.Errorf("envlik: reading %s: variable %s has depth layers but no depth variable is configured",
				file, a.ValueVar)
		}
		if g.Depth, err = readAxis(ff, a.DepthVar); err != nil {
			return nil, fmt.Errorf("envlik: reading %s: %v", file, err)
		}
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

// readAxis reads the one-dimensional variable name.
func readAxis(ff *cdf.File, name string) ([]float64, error) {
	d, err := readNCF(ff, name, "")
	if err != nil {
		return nil, err
	}
	if len(d.Shape) != 1 {
		return nil, fmt.Errorf("coordinate variable %s has %d dimensions; it should have 1", name, len(d.Shape))
	}
	return d.Elements, nil
}

// readNCF reads variable name from ff, reading only the first record of
// record variables. Leading singleton dimensions other than keepDim are
// dropped until two dimensions remain. Packed values are unpacked and fill
// values are set to NaN.
func readNCF(ff *cdf.File, name, keepDim string) (*sparse.DenseArray, error) {
	h := ff.Header
	dims := h.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s not in file", name)
	}
	dimNames := h.Dimensions(name)
	var start, end []int
	if h.IsRecordVariable(name) {
		start, end = make([]int, len(dims)), make([]int, len(dims))
		end[0] = 1
		dims, dimNames = dims[1:], dimNames[1:]
	}
	for len(dims) > 2 && dims[0] == 1 && dimNames[0] != keepDim {
		dims, dimNames = dims[1:], dimNames[1:]
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s has no data dimensions", name)
	}
	nread := 1
	for _, dim := range dims {
		nread *= dim
	}
	r := ff.Reader(name, start, end)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	var raw []float64
	switch b := buf.(type) {
	case []float32:
		raw = make([]float64, len(b))
		for i, v := range b {
			raw[i] = float64(v)
		}
	case []float64:
		raw = b
	case []int16:
		raw = make([]float64, len(b))
		for i, v := range b {
			raw[i] = float64(v)
		}
	case []int32:
		raw = make([]float64, len(b))
		for i, v := range b {
			raw[i] = float64(v)
		}
	case []uint8:
		raw = make([]float64, len(b))
		for i, v := range b {
			raw[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}

	var fill []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(h, name, a); ok {
			fill = append(fill, v)
		}
	}
	if v, ok := toFloat(h.FillValue(name)); ok {
		fill = append(fill, v)
	}
	scale, ok := attrFloat(h, name, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := attrFloat(h, name, "add_offset")

	data := sparse.ZerosDense(dims...)
	for i, v := range raw {
		if isFill(v, fill) {
			data.Elements[i] = math.NaN()
			continue
		}
		data.Elements[i] = v*scale + offset
	}
	return data, nil
}

func isFill(v float64, fill []float64) bool {
	if math.IsNaN(v) {
		return true
	}
	for _, f := range fill {
		if v == f {
			return true
		}
	}
	return false
}

// attrFloat returns the first value of numeric attribute a of variable v.
func attrFloat(h *cdf.Header, v, a string) (float64, bool) {
	switch x := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// toFloat converts a scalar fill value to float64.
func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}
