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

package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FakeRunner stands in for the WPS and WRF executables in tests. Instead
// of running them it records each call and writes the files the real
// program would leave behind.
type FakeRunner struct {
	// Date is used in the names of simulated output files. It defaults
	// to "2019-08-21_00:00:00".
	Date string

	// Fail makes the named program (e.g. "./wrf.exe") fail with the
	// given error after writing its log files.
	Fail map[string]error

	mu    sync.Mutex
	calls []string
}

// Calls returns the command lines run so far, each prefixed by the base
// name of its working directory.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Run implements Runner.
func (f *FakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(dir)+": "+cmdline)
	f.mu.Unlock()

	date := f.Date
	if date == "" {
		date = "2019-08-21_00:00:00"
	}
	prog := name
	switch name {
	case "csh":
		prog = args[0]
	case "mpirun":
		prog = args[len(args)-1]
	}

	var files []string
	switch prog {
	case "link_grib.csh":
		files = []string{"GRIBFILE.AAA", "GRIBFILE.AAB"}
	case "./ungrib.exe":
		files = []string{"ungrib.log", "FILE:" + date[:13]}
	case "./geogrid.exe":
		files = []string{"geogrid.log", "geo_em.d01.nc", "geo_em.d02.nc", "geo_em.d03.nc"}
	case "./metgrid.exe":
		files = []string{"metgrid.log", "met_em.d01." + date + ".nc", "met_em.d03." + date + ".nc"}
	case "./real.exe":
		files = []string{"rsl.out.0000", "rsl.error.0000", "wrfinput_d01"}
	case "./wrf.exe":
		files = []string{"rsl.out.0000", "rsl.error.0000", "wrfout_d01_" + date, "wrfout_d03_" + date}
	case "ncks":
		// ncks -v vars in out
		in, out := args[len(args)-2], args[len(args)-1]
		b, err := os.ReadFile(in)
		if err != nil {
			return nil, &ProcessError{Cmd: cmdline, Err: err}
		}
		return nil, os.WriteFile(out, b, 0644)
	default:
		return nil, &ProcessError{Cmd: cmdline, Err: fmt.Errorf("unknown program %s", prog)}
	}
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(prog+" "+file), 0644); err != nil {
			return nil, err
		}
	}
	if err, ok := f.Fail[prog]; ok {
		return []byte(prog + " failed"), &ProcessError{Cmd: cmdline, Output: prog + " failed", Err: err}
	}
	return []byte(prog + " ok"), nil
}
