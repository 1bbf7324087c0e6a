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
	"time"
)

// ResolvedCycle identifies the forecast cycle to download from and the
// first lead time needed from it.
type ResolvedCycle struct {
	// Date is the calendar date of the cycle, at midnight UTC.
	Date time.Time

	// Hour is the cycle hour: 0, 6, 12 or 18 for 6-hourly cycles.
	Hour int

	// StartOffset is the first lead time in hours. It is a multiple
	// of the step used to resolve the cycle.
	StartOffset int
}

// DateString returns the cycle date as YYYYMMDD.
func (c ResolvedCycle) DateString() string { return c.Date.Format("20060102") }

// HourString returns the zero-padded cycle hour.
func (c ResolvedCycle) HourString() string { return fmt.Sprintf("%02d", c.Hour) }

// Time returns the reference time of the cycle.
func (c ResolvedCycle) Time() time.Time {
	return c.Date.Add(time.Duration(c.Hour) * time.Hour)
}

func (c ResolvedCycle) String() string {
	return fmt.Sprintf("%s %sz +%03d", c.DateString(), c.HourString(), c.StartOffset)
}

// ResolveCycle maps the requested start time to the forecast cycle whose
// data covers it. start is first floored to a multiple of step hours since
// the Unix epoch. If that instant is no more than lagHours before now, the
// data is assumed not yet published and the search moves lagHours back.
// The result is then floored to a multiple of cycleInterval hours to give
// the cycle, and the offset of the floored start from the cycle is the
// first lead time. step and cycleInterval must be positive.
func ResolveCycle(start time.Time, step, cycleInterval, lagHours int, now time.Time) ResolvedCycle {
	stepSec := int64(step) * 3600
	st := floorEpoch(start.Unix(), stepSec)

	anchor := st
	lagSec := int64(lagHours) * 3600
	if now.Unix()-st <= lagSec {
		anchor = st - lagSec
	}
	cycle := floorEpoch(anchor, int64(cycleInterval)*3600)

	ct := time.Unix(cycle, 0).UTC()
	return ResolvedCycle{
		Date:        time.Date(ct.Year(), ct.Month(), ct.Day(), 0, 0, 0, 0, time.UTC),
		Hour:        ct.Hour(),
		StartOffset: int(floorDiv(st-cycle, stepSec)) * step,
	}
}

// floorEpoch floors the Unix time t to a multiple of sec seconds.
func floorEpoch(t, sec int64) int64 {
	return floorDiv(t, sec) * sec
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
