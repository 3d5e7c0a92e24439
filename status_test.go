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
	"bytes"
	"errors"
	"testing"
)

func TestStatus(t *testing.T) {
	status := []DayStatus{
		{Date: date(2019, 5, 1), Slot: 0, Status: StatusOK, Samples: 12},
		{Date: date(2019, 5, 2), Slot: 1, Status: StatusUnavailable, Samples: 3, Err: errors.New("no file")},
		{Date: date(2019, 5, 4), Slot: -1, Status: StatusDropped, Samples: 1},
	}
	var b bytes.Buffer
	if err := WriteStatus(&b, ModeOHC, status); err != nil {
		t.Fatal(err)
	}
	m, err := ReadStatus(&b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != Version || m.Mode != "ohc" || len(m.Days) != 3 {
		t.Fatalf("have %+v", m)
	}
	for i, d := range m.Days {
		s := status[i]
		if !d.Date.Equal(s.Date) || d.Slot != s.Slot || d.Status != s.Status || d.Samples != s.Samples {
			t.Errorf("day %d: have %+v, want %+v", i, d, s)
		}
	}
	if m.Days[1].Error != "no file" || m.Days[0].Error != "" {
		t.Errorf("errors: %q %q", m.Days[0].Error, m.Days[1].Error)
	}
}
