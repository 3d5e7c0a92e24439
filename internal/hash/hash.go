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

// Package hash creates stable keys for cached requests and run provenance.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// printer writes values that gob cannot encode, such as structs without
// exported fields.
var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Hash returns a hex-encoded 128-bit FNV-1a hash of the given values.
// Equal values always give equal keys.
func Hash(values ...interface{}) string {
	h := fnv.New128a()
	for _, v := range values {
		write(h, v)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func write(w io.Writer, v interface{}) {
	if s, ok := v.(fmt.Stringer); ok {
		io.WriteString(w, s.String())
		return
	}
	if err := gob.NewEncoder(w).Encode(v); err == nil {
		return
	}
	printer.Fprintf(w, "%#v", v)
}
