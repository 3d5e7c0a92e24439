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
	"runtime"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds the time spent fetching one day of reference data.
const DefaultFetchTimeout = 5 * time.Minute

// Config holds the settings of a likelihood run.
type Config struct {
	Mode Mode

	// Window is the edge length of the square neighbourhood used to
	// calculate spatial variability. Even values are rounded up. If it is zero, it is derived from
	// the latitude spacing of the reference data so that it spans about
	// DefaultWindowDegrees.
	Window int

	// SensorError is the tag sensor error [%], applied in SST mode. If it
	// is nil, DefaultSensorError is used.
	SensorError *float64

	// Isotherm is the heat content baseline temperature. If it is nil
	// the lowest profile bound of each day is used.
	Isotherm *float64

	OHCBias      float64 // Subtracted from heat content likelihoods.
	HeatCapacity float64 // kJ kg⁻¹ °C⁻¹
	Density      float64 // kg m⁻³

	// Workers is the number of days processed concurrently. If it is zero,
	// runtime.GOMAXPROCS(0) is used.
	Workers int

	// FetchTimeout bounds the reference data fetch of each day.
	FetchTimeout time.Duration

	// Mask, if set, excludes cells from every day's likelihood.
	Mask *Mask

	// Shape, if set, fixes the output shape. Otherwise it is taken from
	// the first reference field that can be fetched.
	Shape *Shape

	// FitSpan is the fraction of samples in each local regression
	// neighbourhood in profile and heat content modes.
	FitSpan float64

	Log logrus.FieldLogger
}

// Defaults returns a copy of c with unset fields set to their default values.
// OHCBias is left alone because zero is a valid bias.
func (c Config) Defaults() Config {
	if c.SensorError == nil {
		e := DefaultSensorError
		c.SensorError = &e
	}
	if c.HeatCapacity == 0 {
		c.HeatCapacity = DefaultHeatCapacity
	}
	if c.Density == 0 {
		c.Density = DefaultDensity
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.FitSpan == 0 {
		c.FitSpan = DefaultFitSpan
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSST, ModeProfile, ModeOHC:
	default:
		return fmt.Errorf("envlik: invalid mode %d", c.Mode)
	}
	if c.Window < 0 {
		return fmt.Errorf("envlik: window must not be negative, got %d", c.Window)
	}
	if c.SensorError != nil && *c.SensorError < 0 {
		return fmt.Errorf("envlik: sensor error must not be negative, got %g", *c.SensorError)
	}
	if c.OHCBias < 0 {
		return fmt.Errorf("envlik: heat content bias must not be negative, got %g", c.OHCBias)
	}
	if c.HeatCapacity <= 0 || c.Density <= 0 {
		return fmt.Errorf("envlik: heat capacity and density must be positive, got %g and %g",
			c.HeatCapacity, c.Density)
	}
	if c.Workers < 1 {
		return fmt.Errorf("envlik: number of workers must be positive, got %d", c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("envlik: fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	if c.FitSpan <= 0 || c.FitSpan > 1 {
		return fmt.Errorf("envlik: fit span must be in (0, 1], got %g", c.FitSpan)
	}
	if c.Shape != nil && (c.Shape.Nx < 1 || c.Shape.Ny < 1) {
		return fmt.Errorf("envlik: invalid output shape %s", c.Shape)
	}
	if c.Mask != nil && c.Shape != nil && c.Mask.Shape != *c.Shape {
		return fmt.Errorf("envlik: mask shape %s does not match output shape %s: %w",
			c.Mask.Shape, c.Shape, ErrDimensionMismatch)
	}
	return nil
}

// Day statuses.
const (
	StatusOK          = "ok"
	StatusZero        = "zero"
	StatusUnavailable = "unavailable"
	StatusFitFailure  = "fit failure"
	StatusMismatch    = "dimension mismatch"
	StatusTimeout     = "timeout"
	StatusFailed      = "failed"
	StatusDropped     = "dropped"
)

// DayStatus describes the outcome of one day of a run.
type DayStatus struct {
	Date time.Time

	// Slot is the output slot of the day, or -1 if the day has no slot.
	Slot int

	Status string
	Err    error `toml:"-"`

	// Samples is the number of tag samples on the day.
	Samples int
}

// Result is the output of a run.
type Result struct {
	Stack *Stack

	// Dates is the master date vector truncated to the available
	// reference data. It has one entry per stack slot.
	Dates []time.Time

	// Lon and Lat are the coordinate axes of the stack. They are nil
	// if no reference field could be fetched.
	Lon, Lat []float64

	Status []DayStatus
}

// Run calculates the likelihood stack for the given tag series and master
// date vector using reference data from acc. Failures on individual days
// leave those days' slots zero and are recorded in Result.Status; Run only
// returns an error if no reference dates exist, dates is empty or not
// strictly increasing, or the output shape cannot be determined.
func Run(ctx context.Context, cfg *Config, acc Accessor, tags TagSeries, dates []time.Time) (*Result, error) {
	c := cfg.Defaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	available, err := acc.Dates()
	if err != nil {
		return nil, fmt.Errorf("envlik: listing reference dates: %w", err)
	}
	al, err := Align(tags, dates, available)
	if err != nil {
		return nil, err
	}
	for _, d := range al.Dropped {
		c.Log.WithFields(logrus.Fields{"date": d.Format(dateFormat)}).Warn("envlik: tag day is not in the master date vector; skipping")
	}

	var shape Shape
	var template *GridField
	if c.Shape != nil {
		shape = *c.Shape
	} else {
		template, err = PrescanShape(ctx, acc, scanDates(al, available), c.FetchTimeout)
		if err != nil {
			return nil, err
		}
		shape = template.Shape()
	}
	if c.Mask != nil && c.Mask.Shape != shape {
		return nil, fmt.Errorf("envlik: mask shape %s does not match output shape %s: %w",
			c.Mask.Shape, shape, ErrDimensionMismatch)
	}

	byDay := al.Tags.Days()
	results := make([]dayResult, len(al.Days))
	var g errgroup.Group
	g.SetLimit(c.Workers)
	for i, d := range al.Days {
		i, d := i, d
		g.Go(func() error {
			results[i] = processDay(ctx, &c, acc, shape, d, byDay[d])
			return nil
		})
	}
	g.Wait()

	grids := make([]*sparse.DenseArray, len(results))
	res := &Result{Dates: al.Dates}
	if template != nil {
		res.Lon, res.Lat = template.Lon, template.Lat
	}
	for i, r := range results {
		st := DayStatus{
			Date:    al.Days[i],
			Slot:    al.Slots[i],
			Samples: len(byDay[al.Days[i]]),
			Err:     r.err,
			Status:  statusOf(r.err),
		}
		if r.err == nil {
			if Normalize(r.grid) {
				grids[i] = r.grid
			} else {
				st.Status = StatusZero
			}
			if res.Lon == nil {
				res.Lon, res.Lat = r.lon, r.lat
			}
		}
		logDay(c.Log, st)
		res.Status = append(res.Status, st)
	}
	for _, d := range al.Dropped {
		res.Status = append(res.Status, DayStatus{Date: d, Slot: -1, Status: StatusDropped, Samples: len(byDay[d])})
	}
	res.Stack, err = Assemble(shape, len(al.Dates), grids, al.Slots)
	if err != nil {
		return nil, err
	}
	c.Log.WithFields(logrus.Fields{
		"mode":  c.Mode.String(),
		"slots": len(al.Dates),
		"days":  len(al.Days),
		"ok":    countStatus(res.Status, StatusOK),
		"shape": shape.String(),
	}).Info("envlik: run complete")
	return res, nil
}

// scanDates returns the dates to try when fixing the run shape: the
// processing days first, then the other master dates with reference data.
func scanDates(al *Alignment, available []time.Time) []time.Time {
	has := make(map[time.Time]bool, len(available))
	for _, d := range available {
		has[Day(d)] = true
	}
	tried := make(map[time.Time]bool, len(al.Days))
	o := make([]time.Time, 0, len(al.Dates))
	for _, d := range al.Days {
		tried[d] = true
		o = append(o, d)
	}
	for _, d := range al.Dates {
		if !tried[d] && has[d] {
			o = append(o, d)
		}
	}
	return o
}

type dayResult struct {
	grid     *sparse.DenseArray
	lon, lat []float64
	err      error
}

// processDay calculates the combined likelihood for one day. Panics are
// converted to errors.
func processDay(ctx context.Context, c *Config, acc Accessor, shape Shape, date time.Time, samples []TagSample) (r dayResult) {
	defer func() {
		if p := recover(); p != nil {
			r = dayResult{err: fmt.Errorf("envlik: %s: panic: %v", date.Format(dateFormat), p)}
		}
	}()
	f, err := fetch(ctx, acc, date, c.FetchTimeout)
	if err != nil {
		return dayResult{err: err}
	}
	if err := f.check(); err != nil {
		return dayResult{err: err}
	}
	if f.Shape() != shape {
		return dayResult{err: fmt.Errorf("envlik: %s: reference shape %s does not match run shape %s: %w",
			date.Format(dateFormat), f.Shape(), shape, ErrDimensionMismatch)}
	}
	if c.Mask != nil {
		if err := c.Mask.Apply(f); err != nil {
			return dayResult{err: err}
		}
	}
	window := oddWindow(c.Window)
	if c.Window == 0 {
		window = WindowSize(f.Lat, DefaultWindowDegrees)
	}

	var lik *sparse.DenseArray
	switch c.Mode {
	case ModeSST:
		lo, hi, ok := sstInterval(samples, *c.SensorError)
		if !ok {
			return dayResult{err: fmt.Errorf("envlik: %s: no usable temperature samples: %w",
				date.Format(dateFormat), ErrFitFailure)}
		}
		lik, err = SSTLikelihood(f, lo, hi, window)
	case ModeProfile, ModeOHC:
		var bounds []ProfileBound
		bounds, err = FitProfile(samples, f.Depth, c.FitSpan)
		if err != nil {
			return dayResult{err: fmt.Errorf("envlik: %s: %w", date.Format(dateFormat), err)}
		}
		if c.Mode == ModeProfile {
			lik, err = ProfileLikelihood(f, bounds, window)
			break
		}
		h := HeatContent{HeatCapacity: c.HeatCapacity, Density: c.Density, Bias: c.OHCBias, Isotherm: c.Isotherm}
		var iso float64
		lik, iso, err = h.OHCLikelihood(f, bounds, window)
		c.Log.WithFields(logrus.Fields{"date": date.Format(dateFormat), "isotherm": iso}).Debug("envlik: heat content isotherm")
	}
	if err != nil {
		return dayResult{err: fmt.Errorf("envlik: %s: %w", date.Format(dateFormat), err)}
	}
	if c.Mask != nil {
		c.Mask.zero(lik.Elements)
	}
	return dayResult{grid: lik, lon: f.Lon, lat: f.Lat}
}

// fetch retrieves the reference field for date, giving up after timeout.
func fetch(ctx context.Context, acc Accessor, date time.Time, timeout time.Duration) (*GridField, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type fetched struct {
		f   *GridField
		err error
	}
	ch := make(chan fetched, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- fetched{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		f, err := acc.Fetch(ctx, date)
		ch <- fetched{f: f, err: err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("envlik: fetching reference data for %s: %w", date.Format(dateFormat), r.err)
		}
		if r.f == nil {
			return nil, fmt.Errorf("envlik: fetching reference data for %s: %w", date.Format(dateFormat), ErrDataUnavailable)
		}
		return r.f, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("envlik: fetching reference data for %s: %w", date.Format(dateFormat), ctx.Err())
	}
}

// PrescanShape fetches reference data for the given dates in order and
// returns the first field that can be read, which fixes the shape and axes
// of a run. It returns ErrShapeUnknown if no field can be read.
func PrescanShape(ctx context.Context, acc Accessor, dates []time.Time, timeout time.Duration) (*GridField, error) {
	var errs []error
	for _, d := range dates {
		f, err := fetch(ctx, acc, d, timeout)
		if err == nil {
			err = f.check()
		}
		if err == nil {
			return f, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("envlik: determining output shape from %d dates: %w", len(dates),
		errors.Join(append([]error{ErrShapeUnknown}, errs...)...))
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrDataUnavailable):
		return StatusUnavailable
	case errors.Is(err, ErrFitFailure):
		return StatusFitFailure
	case errors.Is(err, ErrDimensionMismatch):
		return StatusMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusFailed
	}
}

func countStatus(s []DayStatus, status string) int {
	var n int
	for _, d := range s {
		if d.Status == status {
			n++
		}
	}
	return n
}

func logDay(log logrus.FieldLogger, s DayStatus) {
	e := log.WithFields(logrus.Fields{
		"date":    s.Date.Format(dateFormat),
		"slot":    s.Slot,
		"status":  s.Status,
		"samples": s.Samples,
	})
	if s.Err != nil {
		e.WithError(s.Err).Warn("envlik: day failed")
		return
	}
	e.Info("envlik: day processed")
}
