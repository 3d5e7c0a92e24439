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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var tagTimeFormats = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

// ReadTagCSV reads a tag series from CSV data with the header
// time,depth,min,max. Columns may be in any order and extra columns are
// ignored. An empty depth marks a surface-only sample. Times without a zone
// are read as UTC. The result is sorted by time.
func ReadTagCSV(r io.Reader) (TagSeries, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	lines, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("envlik: reading tag file: %v", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("envlik: reading tag file: missing header")
	}
	col := make(map[string]int)
	for i, name := range lines[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"time", "depth", "min", "max"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("envlik: reading tag file: missing column %q", name)
		}
	}
	var o TagSeries
	for i, line := range lines[1:] {
		row := i + 2
		var s TagSample
		if s.Time, err = parseTagTime(line[col["time"]]); err != nil {
			return nil, fmt.Errorf("envlik: reading tag file line %d: %v", row, err)
		}
		if d := strings.TrimSpace(line[col["depth"]]); d != "" {
			if s.Depth, err = cast.ToFloat64E(d); err != nil {
				return nil, fmt.Errorf("envlik: reading tag file line %d: depth: %v", row, err)
			}
			s.HasDepth = true
		}
		if s.Min, err = cast.ToFloat64E(strings.TrimSpace(line[col["min"]])); err != nil {
			return nil, fmt.Errorf("envlik: reading tag file line %d: min: %v", row, err)
		}
		if s.Max, err = cast.ToFloat64E(strings.TrimSpace(line[col["max"]])); err != nil {
			return nil, fmt.Errorf("envlik: reading tag file line %d: max: %v", row, err)
		}
		o = append(o, s)
	}
	sort.SliceStable(o, func(i, j int) bool { return o[i].Time.Before(o[j].Time) })
	return o, nil
}

func parseTagTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, f := range tagTimeFormats {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}
