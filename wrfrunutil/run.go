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

package wrfrunutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wrfrun/wrfrun"
	"github.com/wrfrun/wrfrun/namelist"
)

// Run runs the pipeline stages selected by mode. In ModeAll and ModeWPS
// the GFS data is downloaded and checked first, and nothing else runs if
// any of it is missing.
func (cfg *Cfg) Run(ctx context.Context, mode string) error {
	mode, err := checkMode(mode)
	if err != nil {
		return err
	}
	var gfsPrefix string
	var gfsDir string
	if mode != ModeWRF {
		b, err := cfg.download(ctx)
		if err != nil {
			return err
		}
		if err := wrfrun.CheckInventory(b.items); err != nil {
			return err
		}
		gfsDir = b.config.DestinationDir
		gfsPrefix = wrfrun.LinkGribPrefix(b.cycle, b.config.Resolution, b.config.InventoryTemplate, gfsDir)
	}

	m, err := cfg.Model(gfsPrefix)
	if err != nil {
		return err
	}
	log := cfg.Log.WithField("run_id", m.RunID)
	log.Infof("running mode %s starting %s for %g days", mode, m.StartDate.Format(wrfrun.StartDateLayout), m.Period)

	if mode != ModeWRF {
		if err := m.RunWPS(ctx); err != nil {
			return fmt.Errorf("wrfrun: running WPS: %w", err)
		}
	}
	if mode == ModeWPS {
		return nil
	}

	log.Info("cleaning up WPS directory")
	if err := m.ClearWPS(); err != nil {
		return err
	}
	if gfsDir != "" && cfg.GetBool("gfs_clean") {
		log.Infof("removing %s", gfsDir)
		if err := os.RemoveAll(gfsDir); err != nil {
			return fmt.Errorf("wrfrun: removing GFS data: %v", err)
		}
	}
	if err := m.RunWRF(ctx); err != nil {
		return fmt.Errorf("wrfrun: running WRF: %w", err)
	}
	log.Info("run finished")
	return nil
}

// Namelist writes the namelist.wps ("wps") or namelist.input ("wrf")
// file for the run to w.
func (cfg *Cfg) Namelist(which string, w io.Writer) error {
	var name string
	switch which {
	case "wps":
		name = namelist.WPS
	case "wrf", "input":
		name = namelist.Input
	default:
		return fmt.Errorf("wrfrun: unknown namelist %q", which)
	}
	m, err := cfg.Model("")
	if err != nil {
		return err
	}
	return m.RenderNamelist(name, w)
}
