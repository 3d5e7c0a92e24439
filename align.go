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
	"sort"
	"time"
)

// Alignment reconciles the tag series, the master date vector, and the
// reference data availability of a run.
type Alignment struct {
	// Dates is the master date vector truncated to the last date with
	// reference data. It defines the slots of the output stack.
	Dates []time.Time

	// Tags is the tag series restricted to Dates' upper bound.
	Tags TagSeries

	// Days are the processing days in increasing order: days with at least
	// one tag sample that also have a slot in Dates.
	Days []time.Time

	// Slots holds the output slot of each entry in Days.
	Slots []int

	// Dropped lists days with tag samples that are within bounds but
	// absent from the master date vector. They are not processed.
	Dropped []time.Time
}

// Align produces the processing schedule of a run from the tag series, the
// master date vector, and the dates for which reference data is available.
// It returns ErrDataUnavailable if available is empty.
func Align(tags TagSeries, dates, available []time.Time) (*Alignment, error) {
	if len(available) == 0 {
		return nil, fmt.Errorf("envlik: aligning dates: no reference dates: %w", ErrDataUnavailable)
	}
	master := make([]time.Time, len(dates))
	for i, d := range dates {
		master[i] = Day(d)
	}
	if err := checkDates(master); err != nil {
		return nil, fmt.Errorf("envlik: aligning dates: %w", err)
	}

	bound := Day(available[0])
	for _, d := range available[1:] {
		if d := Day(d); d.After(bound) {
			bound = d
		}
	}

	a := new(Alignment)
	slot := make(map[time.Time]int)
	for _, d := range master {
		if d.After(bound) {
			break
		}
		slot[d] = len(a.Dates)
		a.Dates = append(a.Dates, d)
	}
	if len(a.Dates) == 0 {
		return nil, fmt.Errorf("envlik: aligning dates: no master dates on or before %s: %w",
			bound.Format(dateFormat), ErrNoDates)
	}

	days := make(map[time.Time]struct{})
	for _, ts := range tags {
		d := Day(ts.Time)
		if d.After(bound) {
			continue
		}
		a.Tags = append(a.Tags, ts)
		days[d] = struct{}{}
	}
	for d := range days {
		if _, ok := slot[d]; ok {
			a.Days = append(a.Days, d)
		} else {
			a.Dropped = append(a.Dropped, d)
		}
	}
	sort.Slice(a.Days, func(i, j int) bool { return a.Days[i].Before(a.Days[j]) })
	sort.Slice(a.Dropped, func(i, j int) bool { return a.Dropped[i].Before(a.Dropped[j]) })
	a.Slots = make([]int, len(a.Days))
	for i, d := range a.Days {
		a.Slots[i] = slot[d]
	}
	return a, nil
}
