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

package wrfrun

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// WorkItem is one file to download.
type WorkItem struct {
	// RemoteLocator is the URL the file is downloaded from.
	RemoteLocator string

	// LocalPath is where the file is written.
	LocalPath string

	// LeadTime is the forecast hour of the file.
	LeadTime int
}

func (w WorkItem) String() string { return w.RemoteLocator + " " + w.LocalPath }

// Template tokens.
const (
	tokenYear       = "YYYY"
	tokenMonth      = "MM"
	tokenDay        = "DD"
	tokenCycle      = "CC"
	tokenLeadTime   = "FFF"
	tokenResolution = "RRRR"
)

// tokenReplacer returns a replacer that substitutes every template token
// in a single left-to-right pass, so substituted values are never
// themselves rescanned for tokens.
func tokenReplacer(cycle ResolvedCycle, leadTime, resolution string) *strings.Replacer {
	date := cycle.DateString()
	return strings.NewReplacer(
		tokenYear, date[0:4],
		tokenMonth, date[4:6],
		tokenDay, date[6:8],
		tokenCycle, cycle.HourString(),
		tokenLeadTime, leadTime,
		tokenResolution, resolution,
	)
}

// Enumerate returns the files needed to cover periodDays from the cycle's
// start offset, one per step hours, in ascending lead-time order. The
// final lead time StartOffset+floor(periodDays*24) is included when it
// falls on the step grid.
func Enumerate(cycle ResolvedCycle, periodDays float64, step int, resolution, remoteTemplate, inventoryTemplate, destDir string) []WorkItem {
	last := cycle.StartOffset + int(periodDays*24)
	var items []WorkItem
	for i := cycle.StartOffset; i <= last; i += step {
		r := tokenReplacer(cycle, fmt.Sprintf("%03d", i), resolution)
		inv := r.Replace(inventoryTemplate)
		items = append(items, WorkItem{
			RemoteLocator: r.Replace(remoteTemplate) + inv,
			LocalPath:     filepath.Join(destDir, cycle.DateString()+"."+inv),
			LeadTime:      i,
		})
	}
	return items
}

// LinkGribPrefix returns the path prefix shared by every file of the
// cycle's inventory in destDir, as expected by WPS's link_grib.csh.
func LinkGribPrefix(cycle ResolvedCycle, resolution, inventoryTemplate, destDir string) string {
	inv := tokenReplacer(cycle, "", resolution).Replace(inventoryTemplate)
	inv = strings.Replace(inv, ".grb2", "", -1)
	return filepath.Join(destDir, cycle.DateString()+"."+inv)
}

// CheckInventory returns a *MissingDataError listing every item whose
// destination is absent or empty.
func CheckInventory(items []WorkItem) error {
	var missing []string
	for _, item := range items {
		if !fileutil.NonEmpty(item.LocalPath) {
			missing = append(missing, item.LocalPath)
		}
	}
	if len(missing) > 0 {
		return &MissingDataError{Missing: missing}
	}
	return nil
}
