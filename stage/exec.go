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

// Package stage runs the WPS preprocessing and WRF model executables
// on downloaded GFS data and files away their output.
package stage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner runs an external program.
type Runner interface {
	// Run runs name with args in the working directory dir and returns
	// its combined standard output and error. A nonzero exit status
	// is returned as an error.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ProcessRunner runs programs as child processes.
type ProcessRunner struct {
	Log logrus.FieldLogger
}

// Run implements Runner.
func (p ProcessRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	cmdline := strings.Join(append([]string{name}, args...), " ")
	log = log.WithFields(logrus.Fields{"cmd": cmdline, "dir": dir})
	log.Info("starting")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	log.Debugf("output:\n%s", out)
	if err != nil {
		return out, &ProcessError{Cmd: cmdline, Output: tail(out, 20), Err: err}
	}
	log.Info("finished")
	return out, nil
}

// ProcessError is returned when an external program fails.
type ProcessError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("stage: %s: %v\n%s", e.Cmd, e.Err, e.Output)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// tail returns the last n lines of b.
func tail(b []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
