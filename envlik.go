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

// Package envlik computes daily spatial likelihood surfaces for an
// electronically tagged animal by comparing the environmental signal the tag
// recorded (a depth-temperature profile or a sea surface temperature) with a
// gridded reference field for the same day.
//
// The result is a time-ordered stack of two-dimensional likelihood grids,
// one slot per day of the deployment, suitable as the observation model of a
// movement state-space model.
package envlik

import (
	"errors"
	"fmt"
	"time"
)

// Version gives the version number.
const Version = "1.0.0"

// Errors that can be returned by the engine. Most of them only degrade the
// day they occur on; see Run.
var (
	// ErrDataUnavailable is returned when no reference data exists for a
	// requested date (or for any date at all).
	ErrDataUnavailable = errors.New("reference data unavailable")

	// ErrFitFailure is returned when a depth profile cannot be fit to
	// the samples of a day.
	ErrFitFailure = errors.New("profile fit failure")

	// ErrDimensionMismatch is returned when a reference grid does not
	// have the spatial shape fixed for the run.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNoDates is returned when the master date vector is empty.
	ErrNoDates = errors.New("empty master date vector")

	// ErrUnsortedDates is returned when the master date vector is not
	// strictly increasing.
	ErrUnsortedDates = errors.New("master date vector is not sorted and unique")

	// ErrShapeUnknown is returned when the output shape can neither be
	// read from the configuration nor determined by a pre-scan.
	ErrShapeUnknown = errors.New("output shape cannot be determined")
)

// Mode specifies which tag signal is matched against the reference field.
type Mode int

const (
	// ModeSST matches a sea surface temperature range against a surface field.
	ModeSST Mode = iota
	// ModeProfile matches a depth-temperature profile layer by layer.
	ModeProfile
	// ModeOHC matches the ocean heat content implied by the profile.
	ModeOHC
)

func (m Mode) String() string {
	switch m {
	case ModeSST:
		return "sst"
	case ModeProfile:
		return "profile"
	case ModeOHC:
		return "ohc"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode returns the Mode named by s ("sst", "profile", or "ohc").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sst", "SST":
		return ModeSST, nil
	case "profile", "PDT", "pdt":
		return ModeProfile, nil
	case "ohc", "OHC":
		return ModeOHC, nil
	default:
		return 0, fmt.Errorf("envlik: invalid mode '%s'; valid options are sst, profile, and ohc", s)
	}
}

// TagSample is one environmental measurement recorded by a tag.
// Min and Max bound the measured value; for a single reading they are equal.
type TagSample struct {
	Time     time.Time
	Depth    float64 // m, only meaningful if HasDepth is true
	HasDepth bool
	Min, Max float64
}

// TagSeries is a sequence of tag samples.
type TagSeries []TagSample

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days groups the series by calendar day (UTC). The samples of each day keep
// their original order.
func (s TagSeries) Days() map[time.Time][]TagSample {
	o := make(map[time.Time][]TagSample)
	for _, ts := range s {
		d := Day(ts.Time)
		o[d] = append(o[d], ts)
	}
	return o
}

// Span returns the first and last calendar days in the series.
func (s TagSeries) Span() (first, last time.Time, ok bool) {
	for i, ts := range s {
		d := Day(ts.Time)
		if i == 0 || d.Before(first) {
			first = d
		}
		if i == 0 || d.After(last) {
			last = d
		}
	}
	return first, last, len(s) > 0
}

// DailyDates returns every calendar day from start to end, inclusive.
func DailyDates(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	var o []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		o = append(o, d)
	}
	return o
}

// checkDates makes sure the master date vector is usable.
func checkDates(dates []time.Time) error {
	if len(dates) == 0 {
		return ErrNoDates
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return ErrUnsortedDates
		}
	}
	return nil
}
