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
	"io"
	"time"

	"github.com/BurntSushi/toml"
)

// StatusManifest is the machine-readable record of the per-day outcome
// of a run.
type StatusManifest struct {
	Version string        `toml:"version"`
	Mode    string        `toml:"mode"`
	Days    []StatusEntry `toml:"day"`
}

// StatusEntry is the record of one day in a StatusManifest.
type StatusEntry struct {
	Date    time.Time `toml:"date"`
	Slot    int       `toml:"slot"`
	Status  string    `toml:"status"`
	Samples int       `toml:"samples"`
	Error   string    `toml:"error,omitempty"`
}

// WriteStatus writes the day statuses of a run in mode m to w as TOML.
func WriteStatus(w io.Writer, m Mode, status []DayStatus) error {
	sm := StatusManifest{Version: Version, Mode: m.String()}
	for _, s := range status {
		e := StatusEntry{Date: s.Date, Slot: s.Slot, Status: s.Status, Samples: s.Samples}
		if s.Err != nil {
			e.Error = s.Err.Error()
		}
		sm.Days = append(sm.Days, e)
	}
	if err := toml.NewEncoder(w).Encode(sm); err != nil {
		return fmt.Errorf("envlik: writing status: %v", err)
	}
	return nil
}

// ReadStatus reads a manifest written by WriteStatus.
func ReadStatus(r io.Reader) (*StatusManifest, error) {
	sm := new(StatusManifest)
	if _, err := toml.NewDecoder(r).Decode(sm); err != nil {
		return nil, fmt.Errorf("envlik: reading status: %v", err)
	}
	return sm, nil
}
