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
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(StartDateLayout, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestResolveCycle(t *testing.T) {
	tests := []struct {
		name       string
		start, now string
		step, lag  int
		date, hour string
		offset     int
	}{
		{
			// Data for the 00z cycle is not yet published at 02:00,
			// so the previous day's 18z cycle is used.
			name: "recent start", start: "2019-08-21_00:00", now: "2019-08-21_02:00",
			step: 3, lag: 6, date: "20190820", hour: "18", offset: 6,
		},
		{
			name: "old start", start: "2019-08-21_00:00", now: "2019-08-22_00:00",
			step: 3, lag: 6, date: "20190821", hour: "00", offset: 0,
		},
		{
			name: "lag boundary inclusive", start: "2019-08-21_00:00", now: "2019-08-21_06:00",
			step: 3, lag: 6, date: "20190820", hour: "18", offset: 6,
		},
		{
			name: "just past lag", start: "2019-08-21_00:00", now: "2019-08-21_06:01",
			step: 3, lag: 6, date: "20190821", hour: "00", offset: 0,
		},
		{
			name: "start floored to step", start: "2019-08-21_04:59", now: "2019-09-01_00:00",
			step: 3, lag: 6, date: "20190821", hour: "00", offset: 3,
		},
		{
			name: "hourly step", start: "2019-08-21_17:30", now: "2019-09-01_00:00",
			step: 1, lag: 0, date: "20190821", hour: "12", offset: 5,
		},
		{
			name: "zero lag future start", start: "2019-08-21_12:00", now: "2019-08-21_12:00",
			step: 3, lag: 0, date: "20190821", hour: "12", offset: 0,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := ResolveCycle(mustParse(t, test.start), test.step, DefaultCycleInterval, test.lag, mustParse(t, test.now))
			if c.DateString() != test.date {
				t.Errorf("date: have %s, want %s", c.DateString(), test.date)
			}
			if c.HourString() != test.hour {
				t.Errorf("hour: have %s, want %s", c.HourString(), test.hour)
			}
			if c.StartOffset != test.offset {
				t.Errorf("offset: have %d, want %d", c.StartOffset, test.offset)
			}
		})
	}
}

func TestResolveCycleIdempotent(t *testing.T) {
	start := mustParse(t, "2019-08-21_00:00")
	now := mustParse(t, "2019-08-21_02:00")
	a := ResolveCycle(start, 3, 6, 6, now)
	b := ResolveCycle(start, 3, 6, 6, now)
	if a != b {
		t.Errorf("%v != %v", a, b)
	}
	if a.String() != "20190820 18z +006" {
		t.Errorf("have %s", a)
	}
}

func TestResolveCycleStartCovered(t *testing.T) {
	// The floored start must always fall inside the window
	// [cycle + offset, cycle + offset + step).
	now := mustParse(t, "2019-08-25_00:00")
	start := mustParse(t, "2019-08-20_00:00")
	for h := 0; h < 96; h++ {
		s := start.Add(time.Duration(h) * time.Hour)
		for _, lag := range []int{0, 3, 6, 12} {
			c := ResolveCycle(s, 3, 6, lag, now)
			first := c.Time().Add(time.Duration(c.StartOffset) * time.Hour)
			st := s.Truncate(3 * time.Hour)
			if !first.Equal(st) {
				t.Fatalf("start %v lag %d: first lead time %v != floored start %v", s, lag, first, st)
			}
			if c.Hour%6 != 0 || c.StartOffset < 0 || c.StartOffset%3 != 0 {
				t.Fatalf("start %v lag %d: invalid cycle %v", s, lag, c)
			}
		}
	}
}

func TestFloorDiv(t *testing.T) {
	for _, test := range []struct{ a, b, want int64 }{
		{7, 3, 2}, {6, 3, 2}, {-1, 3, -1}, {-3, 3, -1}, {-4, 3, -2}, {0, 3, 0},
	} {
		if have := floorDiv(test.a, test.b); have != test.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", test.a, test.b, have, test.want)
		}
	}
	if have := floorEpoch(-1, 3600); have != -3600 {
		t.Errorf("floorEpoch(-1) = %d", have)
	}
}

func TestRunConfigValidate(t *testing.T) {
	valid := func() RunConfig {
		return RunConfig{
			StartDate:         mustParse(t, "2019-08-21_00:00"),
			Period:            1,
			Step:              3,
			CycleInterval:     6,
			LagHours:          6,
			RemoteTemplate:    "http://example.com/gfs.YYYYMMDD/CC/",
			InventoryTemplate: "gfs.tCCz.pgrb2.RRRR.fFFF",
			Resolution:        "0p25",
			Concurrency:       2,
			DestinationDir:    t.TempDir(),
		}
	}
	c := valid()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	for field, mutate := range map[string]func(*RunConfig){
		"start_date":         func(c *RunConfig) { c.StartDate = time.Time{} },
		"period":             func(c *RunConfig) { c.Period = 0 },
		"gfs_step":           func(c *RunConfig) { c.Step = -3 },
		"gfs_cycle_interval": func(c *RunConfig) { c.CycleInterval = 0 },
		"gfs_lag":            func(c *RunConfig) { c.LagHours = -1 },
		"gfs_threads":        func(c *RunConfig) { c.Concurrency = 0 },
		"gfs_retries":        func(c *RunConfig) { c.Retries = -1 },
		"gfs_url":            func(c *RunConfig) { c.RemoteTemplate = "" },
		"gfs_dir":            func(c *RunConfig) { c.DestinationDir = "" },
	} {
		c := valid()
		mutate(&c)
		err := c.Validate()
		cerr, ok := err.(*ConfigError)
		if !ok {
			t.Errorf("%s: expected *ConfigError, got %v", field, err)
			continue
		}
		if cerr.Field != field {
			t.Errorf("%s: error reported for field %s", field, cerr.Field)
		}
	}
}
