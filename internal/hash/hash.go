/*
Copyright © 2019 the WRFRun authors.
This file is part of WRFRun.

WRFRun is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WRFRun is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WRFRun.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash computes stable keys for configuration values.
package hash

import (
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Hash returns a hex hash key for the specified object. Map keys are
// sorted before hashing, so equal values always give equal keys.
func Hash(object interface{}) string {
	h := fnv.New64a()
	printer.Fprintf(h, "%#v", object)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Short returns the first n characters of Hash(object).
func Short(object interface{}, n int) string {
	s := Hash(object)
	if n > 0 && n < len(s) {
		return s[:n]
	}
	return s
}
