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
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun/internal/fileutil"
	"github.com/wrfrun/wrfrun/namelist"
)

// Default locations beneath Model.WRFHome.
const (
	DefaultWPSPath    = "WPS"
	DefaultEmRealPath = "WRFV3/test/em_real"
	DefaultVtable     = "Vtable.NAM"
)

// Model holds everything needed to run WPS and WRF for one run.
type Model struct {
	// WRFHome is the directory containing the WPS and WRF installations.
	WRFHome string

	// WPSPath and EmRealPath locate the WPS and em_real working directories
	// relative to WRFHome. They default to DefaultWPSPath and
	// DefaultEmRealPath.
	WPSPath, EmRealPath string

	// NFSDir is the shared directory that results and metgrid archives
	// are written to.
	NFSDir string

	// ArchiveDir receives the full model output. It may be a local
	// directory or a blob URL such as 's3://bucket/wrf'.
	ArchiveDir string

	// GeogDir is the WPS static geography directory.
	GeogDir string

	// GFSPrefix is the path prefix of the downloaded GRIB files passed
	// to link_grib.csh.
	GFSPrefix string

	// Vtable is the ungrib variable table to link. Defaults to
	// DefaultVtable.
	Vtable string

	RunID string
	Procs int

	// Domains is the number of nested domains geogrid produces.
	Domains int

	// StartDate and Period (in days) are written into the namelists.
	StartDate time.Time
	Period    float64

	// NamelistWPS and NamelistInput are template files. When empty or
	// missing the built-in templates are used.
	NamelistWPS, NamelistInput string

	// WPSValues and InputValues override namelist substitution values.
	WPSValues, InputValues map[string]string

	Runner Runner
	Log    logrus.FieldLogger
}

// WPSDir returns the WPS working directory.
func (m *Model) WPSDir() string {
	p := m.WPSPath
	if p == "" {
		p = DefaultWPSPath
	}
	return filepath.Join(m.WRFHome, p)
}

// EmRealDir returns the WRF em_real working directory.
func (m *Model) EmRealDir() string {
	p := m.EmRealPath
	if p == "" {
		p = DefaultEmRealPath
	}
	return filepath.Join(m.WRFHome, p)
}

// MetgridDir returns the directory holding metgrid archives.
func (m *Model) MetgridDir() string {
	return filepath.Join(m.NFSDir, "metgrid")
}

// MetgridZip returns the name of this run's metgrid archive.
func (m *Model) MetgridZip() string {
	return m.RunID + "_metgrid.zip"
}

func (m *Model) resultDir(stage string) string {
	return filepath.Join(m.NFSDir, "results", m.RunID, stage)
}

func (m *Model) log() logrus.FieldLogger {
	l := m.Log
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("run_id", m.RunID)
}

func (m *Model) runner() Runner {
	if m.Runner == nil {
		return ProcessRunner{Log: m.Log}
	}
	return m.Runner
}

// RenderNamelist renders the namelist called name (namelist.WPS or
// namelist.Input) for this run into w.
func (m *Model) RenderNamelist(name string, w io.Writer) error {
	tmpl, extra := m.NamelistWPS, m.WPSValues
	if name == namelist.Input {
		tmpl, extra = m.NamelistInput, m.InputValues
	}
	end := namelist.EndDate(m.StartDate, m.Period)
	v := namelist.Values(m.StartDate, end, m.Period, m.GeogDir, extra)
	if err := namelist.RenderTemplate(tmpl, name, w, v); err != nil {
		return fmt.Errorf("stage: %v", err)
	}
	return nil
}

// WriteNamelist renders the namelist called name into the file dst.
func (m *Model) WriteNamelist(name, dst string) error {
	var b bytes.Buffer
	if err := m.RenderNamelist(name, &b); err != nil {
		return err
	}
	return fileutil.WriteAtomic(dst, &b, false)
}

// runLogged runs name in dir and then moves logFile from dir into
// logsDir whether or not the program succeeded.
func (m *Model) runLogged(ctx context.Context, dir, logsDir, logFile, name string, args ...string) error {
	_, err := m.runner().Run(ctx, dir, name, args...)
	if _, merr := fileutil.MoveGlob(dir, logFile, logsDir); merr != nil {
		m.log().WithError(merr).Warnf("moving %s", logFile)
	}
	return err
}

// ClearWPS removes intermediate and static WPS output so a following run
// starts from scratch.
func (m *Model) ClearWPS() error {
	for _, p := range []string{"FILE:*", "PFILE:*", "geo_em.*"} {
		if err := fileutil.RemoveGlob(m.WPSDir(), p); err != nil {
			return err
		}
	}
	return nil
}
