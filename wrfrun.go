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

// Package wrfrun acquires the Global Forecast System (GFS) grib2 files
// needed to initialize a WRF model run. It selects the forecast cycle
// that covers a requested start time given the publication lag of the
// data, enumerates the lead-time files in that cycle, and downloads them
// in parallel with retries and an optional secondary cache.
package wrfrun

import (
	"fmt"
	"time"
)

// Version gives the version number.
const Version = "0.3.0"

// StartDateLayout is the layout used for run start dates in
// configuration files and on the command line.
const StartDateLayout = "2006-01-02_15:04"

// DefaultCycleInterval is the spacing in hours between GFS cycles.
const DefaultCycleInterval = 6

// RunConfig describes the data acquisition for one pipeline invocation.
type RunConfig struct {
	// StartDate is the nominal model start, interpreted as UTC.
	StartDate time.Time

	// Period is the forecast length in days. Fractional values are allowed.
	Period float64

	// Step is the lead-time granularity in hours.
	Step int

	// CycleInterval is the spacing between forecast cycles in hours.
	CycleInterval int

	// LagHours is the minimum delay before a cycle's data is assumed
	// to be published.
	LagHours int

	// RemoteTemplate and InventoryTemplate are the locator templates.
	// They may contain the tokens YYYY, MM, DD, CC, FFF and RRRR.
	RemoteTemplate, InventoryTemplate string

	// Resolution is the grid resolution tag substituted for RRRR, e.g. "0p25".
	Resolution string

	// Concurrency is the number of parallel downloads.
	Concurrency int

	// Retries is the number of additional attempts after a failed download.
	Retries int

	// RetryDelay is the constant wait between attempts.
	RetryDelay time.Duration

	// Overwrite forces downloads even when the destination is present.
	Overwrite bool

	// DestinationDir is where the downloaded files are written.
	DestinationDir string

	// SecondaryCache optionally names a directory or blob storage
	// location holding previously downloaded files.
	SecondaryCache string
}

// Validate checks that the configuration is usable.
func (c *RunConfig) Validate() error {
	switch {
	case c.StartDate.IsZero():
		return &ConfigError{Field: "start_date", Reason: "must be set"}
	case !(c.Period > 0):
		return &ConfigError{Field: "period", Reason: fmt.Sprintf("must be > 0 but is %g", c.Period)}
	case c.Step <= 0:
		return &ConfigError{Field: "gfs_step", Reason: fmt.Sprintf("must be > 0 but is %d", c.Step)}
	case c.CycleInterval <= 0:
		return &ConfigError{Field: "gfs_cycle_interval", Reason: fmt.Sprintf("must be > 0 but is %d", c.CycleInterval)}
	case c.LagHours < 0:
		return &ConfigError{Field: "gfs_lag", Reason: fmt.Sprintf("must be >= 0 but is %d", c.LagHours)}
	case c.Concurrency < 1:
		return &ConfigError{Field: "gfs_threads", Reason: fmt.Sprintf("must be >= 1 but is %d", c.Concurrency)}
	case c.Retries < 0:
		return &ConfigError{Field: "gfs_retries", Reason: fmt.Sprintf("must be >= 0 but is %d", c.Retries)}
	case c.RetryDelay < 0:
		return &ConfigError{Field: "gfs_delay", Reason: "must not be negative"}
	case c.RemoteTemplate == "":
		return &ConfigError{Field: "gfs_url", Reason: "must be set"}
	case c.InventoryTemplate == "":
		return &ConfigError{Field: "gfs_inv", Reason: "must be set"}
	case c.DestinationDir == "":
		return &ConfigError{Field: "gfs_dir", Reason: "must be set"}
	}
	return nil
}

// Resolve returns the forecast cycle covering c.StartDate as of now.
func (c *RunConfig) Resolve(now time.Time) ResolvedCycle {
	return ResolveCycle(c.StartDate, c.Step, c.CycleInterval, c.LagHours, now)
}

// Inventory resolves the cycle as of now and enumerates the files
// needed to cover c.Period.
func (c *RunConfig) Inventory(now time.Time) (ResolvedCycle, []WorkItem, error) {
	if err := c.Validate(); err != nil {
		return ResolvedCycle{}, nil, err
	}
	cycle := c.Resolve(now)
	items := Enumerate(cycle, c.Period, c.Step, c.Resolution,
		c.RemoteTemplate, c.InventoryTemplate, c.DestinationDir)
	return cycle, items, nil
}
