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
	"github.com/ctessum/unit"
)

const (
	// DefaultOHCBias is subtracted from heat content likelihoods before
	// negative values are clipped to zero.
	DefaultOHCBias = 0.2

	// DefaultHeatCapacity is the specific heat capacity of sea water [kJ kg⁻¹ °C⁻¹].
	DefaultHeatCapacity = 3.993

	// DefaultDensity is the density of sea water [kg m⁻³].
	DefaultDensity = 1025.

	// DefaultSensorError is the default tag sensor error [%].
	DefaultSensorError = 1.
)

// sstInterval returns the sensor-error widened temperature range observed at
// the surface on one day. Samples with a depth are ignored unless there are
// no surface-only samples.
func sstInterval(samples []TagSample, sensorError float64) (lo, hi float64, ok bool) {
	pick := func(surfaceOnly bool) {
		for _, s := range samples {
			if (surfaceOnly && s.HasDepth) || math.IsNaN(s.Min) || math.IsNaN(s.Max) {
				continue
			}
			if !ok {
				lo, hi, ok = s.Min, s.Max, true
				continue
			}
			lo, hi = math.Min(lo, s.Min), math.Max(hi, s.Max)
		}
	}
	pick(true)
	if !ok {
		pick(false)
	}
	if !ok {
		return math.NaN(), math.NaN(), false
	}
	e := sensorError / 100
	lo, hi = widen(lo, -e), widen(hi, e)
	return lo, hi, true
}

// widen moves v by the fraction e of its magnitude.
func widen(v, e float64) float64 { return v + math.Abs(v)*e }

// SSTLikelihood returns the likelihood of each cell of the surface layer of f
// given the observed temperature range [lo, hi].
func SSTLikelihood(f *GridField, lo, hi float64, window int) (*sparse.DenseArray, error) {
	layer := f.Layer(0)
	return Likelihood(layer, FocalStdDev(layer, window), lo, hi)
}

// ProfileLikelihood returns the product over the depth levels in bounds of
// the likelihood of each layer of f given the profile bounds at that level.
func ProfileLikelihood(f *GridField, bounds []ProfileBound, window int) (*sparse.DenseArray, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("envlik: profile likelihood: no depth levels: %w", ErrFitFailure)
	}
	var o *sparse.DenseArray
	for _, b := range bounds {
		if b.Level < 0 || b.Level >= f.Nz() {
			return nil, fmt.Errorf("envlik: profile likelihood: level %d is outside field with %d layers: %w",
				b.Level, f.Nz(), ErrDimensionMismatch)
		}
		layer := f.Layer(b.Level)
		lik, err := Likelihood(layer, FocalStdDev(layer, window), b.Low, b.High)
		if err != nil {
			return nil, err
		}
		if o == nil {
			o = lik
			continue
		}
		for i, v := range lik.Elements {
			o.Elements[i] *= v
		}
	}
	return o, nil
}

// HeatContent holds the constants used to convert temperature excess above an
// isotherm into ocean heat content.
type HeatContent struct {
	HeatCapacity float64 // kJ kg⁻¹ °C⁻¹
	Density      float64 // kg m⁻³

	// Bias is subtracted from the likelihood before clipping at zero.
	Bias float64

	// Isotherm is the baseline temperature. If it is nil, the lowest
	// profile low bound of the day is used.
	Isotherm *float64
}

// scale returns the factor converting one degree of excess temperature in one
// metre of water into heat content, in units of 10⁷ J m⁻².
func (h HeatContent) scale() (float64, error) {
	cp := unit.New(h.HeatCapacity*1000, unit.Dimensions{unit.LengthDim: 2, unit.TimeDim: -2, unit.TemperatureDim: -1})
	rho := unit.New(h.Density, unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -3})
	dz := unit.New(1, unit.Dimensions{unit.LengthDim: 1})
	s := unit.Mul(cp, rho, dz)
	if err := s.Check(unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -2, unit.TemperatureDim: -1}); err != nil {
		return math.NaN(), fmt.Errorf("envlik: heat content scale: %v", err)
	}
	return s.Value() * 1.e-7, nil
}

// isotherm returns the configured isotherm, or the minimum low bound of the
// profile if none is configured.
func (h HeatContent) isotherm(bounds []ProfileBound) float64 {
	if h.Isotherm != nil {
		return *h.Isotherm
	}
	iso := math.Inf(1)
	for _, b := range bounds {
		iso = math.Min(iso, b.Low)
	}
	return iso
}

// TagHeatContent returns the heat content range implied by the profile
// bounds relative to the isotherm.
func (h HeatContent) TagHeatContent(bounds []ProfileBound, isotherm float64) (lo, hi float64, err error) {
	s, err := h.scale()
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	for _, b := range bounds {
		lo += b.Low - isotherm
		hi += b.High - isotherm
	}
	return lo * s, hi * s, nil
}

// FieldHeatContent returns the heat content of each cell of f over the
// depth levels in bounds. Temperatures below the isotherm contribute
// nothing. Cells that are missing at every level are NaN.
func (h HeatContent) FieldHeatContent(f *GridField, bounds []ProfileBound, isotherm float64) (*sparse.DenseArray, error) {
	s, err := h.scale()
	if err != nil {
		return nil, err
	}
	ny, nx := f.Ny(), f.Nx()
	o := sparse.ZerosDense(ny, nx)
	defined := make([]bool, ny*nx)
	for _, b := range bounds {
		if b.Level < 0 || b.Level >= f.Nz() {
			return nil, fmt.Errorf("envlik: heat content: level %d is outside field with %d layers: %w",
				b.Level, f.Nz(), ErrDimensionMismatch)
		}
		layer := f.Layer(b.Level)
		for i, v := range layer.Elements {
			if math.IsNaN(v) {
				continue
			}
			defined[i] = true
			if v >= isotherm {
				o.Elements[i] += (v - isotherm) * s
			}
		}
	}
	for i, d := range defined {
		if !d {
			o.Elements[i] = math.NaN()
		}
	}
	return o, nil
}

// OHCLikelihood returns the heat content likelihood of each cell of f given
// the day's profile bounds, after subtracting the bias and clipping at zero.
// It also returns the isotherm that was used.
func (h HeatContent) OHCLikelihood(f *GridField, bounds []ProfileBound, window int) (*sparse.DenseArray, float64, error) {
	if len(bounds) == 0 {
		return nil, math.NaN(), fmt.Errorf("envlik: heat content likelihood: no depth levels: %w", ErrFitFailure)
	}
	iso := h.isotherm(bounds)
	lo, hi, err := h.TagHeatContent(bounds, iso)
	if err != nil {
		return nil, iso, err
	}
	ohc, err := h.FieldHeatContent(f, bounds, iso)
	if err != nil {
		return nil, iso, err
	}
	lik, err := Likelihood(ohc, FocalStdDev(ohc, window), lo, hi)
	if err != nil {
		return nil, iso, err
	}
	for i, v := range lik.Elements {
		lik.Elements[i] = math.Max(v-h.Bias, 0)
	}
	return lik, iso, nil
}
