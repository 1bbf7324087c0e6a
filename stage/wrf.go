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
	"strconv"
	"strings"

	"github.com/wrfrun/wrfrun/cloud"
	"github.com/wrfrun/wrfrun/internal/fileutil"
	"github.com/wrfrun/wrfrun/namelist"
)

// RainfallVars are the variables extracted from model output into the
// rainfall files kept in the results directory.
const RainfallVars = "RAINC,RAINNC,XLAT,XLONG,Times"

// RainfallDomains are the domains whose rainfall is extracted.
var RainfallDomains = []string{"d03", "d01"}

// RunWRF extracts this run's metgrid archive into the em_real directory,
// runs real.exe and wrf.exe under mpirun, extracts rainfall into the wrf
// results directory and moves the full output to the archive location.
// Earlier contents of the results directory are backed up first.
func (m *Model) RunWRF(ctx context.Context) (err error) {
	log := m.log().WithField("stage", "wrf")
	log.Info("running em_real")
	emReal := m.EmRealDir()
	outDir := m.resultDir("wrf")

	bck, err := fileutil.BackupDir(outDir)
	if err != nil {
		return err
	}
	if bck != "" {
		log.Infof("backed up earlier output to %s", bck)
	}
	logsDir, err := fileutil.EnsureDir(filepath.Join(outDir, "logs"))
	if err != nil {
		return err
	}

	if err := m.WriteNamelist(namelist.Input, filepath.Join(emReal, namelist.Input)); err != nil {
		return err
	}
	if err := m.runModel(ctx, emReal, logsDir, outDir); err != nil {
		return err
	}
	log.Info("em_real done")

	for _, d := range RainfallDomains {
		if err := m.extractRainfall(ctx, emReal, d, outDir); err != nil {
			return err
		}
	}
	if err := m.archive(ctx, emReal); err != nil {
		return err
	}

	log.Info("cleaning up files")
	for _, p := range []string{"met_em*", "rsl*", m.MetgridZip()} {
		if err := fileutil.RemoveGlob(emReal, p); err != nil {
			return err
		}
	}
	return nil
}

// runModel unpacks the metgrid archive and runs real.exe then wrf.exe.
// The rsl logs of each program are zipped into logsDir and the namelist
// is moved to outDir even when a program fails.
func (m *Model) runModel(ctx context.Context, emReal, logsDir, outDir string) (err error) {
	defer func() {
		if _, merr := fileutil.MoveGlob(emReal, namelist.Input, outDir); merr != nil && err == nil {
			err = merr
		}
	}()

	if _, err := fileutil.CopyGlob(m.MetgridDir(), m.MetgridZip(), emReal); err != nil {
		return err
	}
	zipPath := filepath.Join(emReal, m.MetgridZip())
	if _, err := os.Stat(zipPath); err != nil {
		return fmt.Errorf("stage: metgrid archive %s not found in %s", m.MetgridZip(), m.MetgridDir())
	}
	if _, err := fileutil.Unzip(zipPath, emReal); err != nil {
		return err
	}

	procs := m.Procs
	if procs < 1 {
		procs = 1
	}
	for _, prog := range []string{"real", "wrf"} {
		_, err := m.runner().Run(ctx, emReal, "mpirun", "-np", strconv.Itoa(procs), "./"+prog+".exe")
		if zerr := m.stashRSL(emReal, prog+"_rsl.zip", logsDir); zerr != nil {
			m.log().WithError(zerr).Warnf("saving %s logs", prog)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// stashRSL zips and deletes the rsl files in dir and moves the archive
// into logsDir.
func (m *Model) stashRSL(dir, name, logsDir string) error {
	if _, err := fileutil.ZipGlob(dir, "rsl*", filepath.Join(dir, name), true); err != nil {
		return err
	}
	_, err := fileutil.MoveGlob(dir, name, logsDir)
	return err
}

// extractRainfall writes the rainfall variables of the first output file
// of domain to a companion _rf.nc file in outDir.
func (m *Model) extractRainfall(ctx context.Context, emReal, domain, outDir string) error {
	files, err := fileutil.Glob(emReal, "wrfout_"+domain+"_*")
	if err != nil {
		return err
	}
	var nc string
	for _, f := range files {
		if !strings.HasSuffix(f, "_rf.nc") {
			nc = f
			break
		}
	}
	if nc == "" {
		return fmt.Errorf("stage: no wrfout file for domain %s in %s", domain, emReal)
	}
	rf := nc + "_rf.nc"
	if _, err := m.runner().Run(ctx, emReal, "ncks", "-v", RainfallVars, nc, rf); err != nil {
		return err
	}
	_, err = fileutil.MoveGlob(emReal, filepath.Base(rf), outDir)
	return err
}

// archive moves the model output from emReal to ArchiveDir. A blob
// ArchiveDir receives an upload and the local copies are deleted.
func (m *Model) archive(ctx context.Context, emReal string) error {
	if cloud.IsBlob(m.ArchiveDir) {
		files, err := fileutil.Glob(emReal, "wrfout_*")
		if err != nil {
			return err
		}
		loc := strings.TrimRight(m.ArchiveDir, "/") + "/results/" + m.RunID + "/wrf"
		if err := cloud.Upload(ctx, loc, files, m.log()); err != nil {
			return err
		}
		return fileutil.RemoveGlob(emReal, "wrfout_*")
	}
	dir := filepath.Join(m.ArchiveDir, "results", m.RunID, "wrf")
	moved, err := fileutil.MoveGlob(emReal, "wrfout_*", dir)
	if err != nil {
		return err
	}
	m.log().WithField("files", len(moved)).Infof("archived output to %s", dir)
	return nil
}
