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

	"github.com/wrfrun/wrfrun/internal/fileutil"
	"github.com/wrfrun/wrfrun/namelist"
)

// RunWPS runs link_grib.csh, ungrib, geogrid (when its output is missing)
// and metgrid, then archives the met_em files into MetgridDir. Program logs
// and the rendered namelist are kept under the run's wps results directory.
func (m *Model) RunWPS(ctx context.Context) (err error) {
	log := m.log().WithField("stage", "wps")
	log.Info("running WPS")
	wps := m.WPSDir()
	outDir := m.resultDir("wps")
	logsDir, err := fileutil.EnsureDir(filepath.Join(outDir, "logs"))
	if err != nil {
		return err
	}

	log.Info("cleaning up files")
	for _, p := range []string{"FILE:*", "PFILE:*", "met_em*"} {
		if err := fileutil.RemoveGlob(wps, p); err != nil {
			return err
		}
	}
	if err := m.linkVtable(); err != nil {
		return err
	}
	if err := m.WriteNamelist(namelist.WPS, filepath.Join(wps, namelist.WPS)); err != nil {
		return err
	}
	defer func() {
		if _, merr := fileutil.MoveGlob(wps, namelist.WPS, outDir); merr != nil && err == nil {
			err = merr
		}
	}()

	if _, err := m.runner().Run(ctx, wps, "csh", "link_grib.csh", m.GFSPrefix); err != nil {
		return err
	}
	if err := m.runLogged(ctx, wps, logsDir, "ungrib.log", "./ungrib.exe"); err != nil {
		return err
	}
	if !m.geogridDone() {
		log.Info("geogrid output not available")
		if err := m.runLogged(ctx, wps, logsDir, "geogrid.log", "./geogrid.exe"); err != nil {
			return err
		}
	}
	if err := m.runLogged(ctx, wps, logsDir, "metgrid.log", "./metgrid.exe"); err != nil {
		return err
	}
	log.Info("WPS done")

	zipPath := filepath.Join(wps, m.MetgridZip())
	files, err := fileutil.ZipGlob(wps, "met_em.d*", zipPath, false)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("stage: metgrid produced no met_em files in %s", wps)
	}
	if _, err := fileutil.MoveGlob(wps, m.MetgridZip(), m.MetgridDir()); err != nil {
		return err
	}
	log.WithField("files", len(files)).Infof("archived metgrid output to %s", m.MetgridDir())
	return nil
}

// linkVtable points WPS/Vtable at the configured variable table unless a
// Vtable is already present.
func (m *Model) linkVtable() error {
	link := filepath.Join(m.WPSDir(), "Vtable")
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	vt := m.Vtable
	if vt == "" {
		vt = DefaultVtable
	}
	m.log().Infof("creating Vtable symlink to %s", vt)
	if err := os.Symlink(filepath.Join(m.WPSDir(), "ungrib", "Variable_Tables", vt), link); err != nil {
		return fmt.Errorf("stage: linking Vtable: %v", err)
	}
	return nil
}

// geogridDone reports whether geo_em files exist for every domain.
func (m *Model) geogridDone() bool {
	n := m.Domains
	if n <= 0 {
		n = 3
	}
	for i := 1; i <= n; i++ {
		if _, err := os.Stat(filepath.Join(m.WPSDir(), fmt.Sprintf("geo_em.d%02d.nc", i))); err != nil {
			return false
		}
	}
	return true
}
