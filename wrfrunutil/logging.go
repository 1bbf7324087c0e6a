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
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun"
)

// setLogging configures cfg.Log from the log_level and log_file options.
func (cfg *Cfg) setLogging() error {
	level, err := logrus.ParseLevel(cfg.GetString("log_level"))
	if err != nil {
		return &wrfrun.ConfigError{Field: "log_level", Reason: err.Error()}
	}
	cfg.Log.SetLevel(level)
	cfg.Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	})

	var out io.Writer = os.Stderr
	var w *os.File
	if f := expand(cfg.GetString("log_file")); f != "" {
		w, err = os.OpenFile(f, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("wrfrun: opening log file: %v", err)
		}
		out = io.MultiWriter(os.Stderr, w)
	}
	cfg.Log.SetOutput(out)
	cfg.closeLog()
	cfg.logFile = w
	return nil
}

// closeLog closes the log file opened by the last setLogging call.
func (cfg *Cfg) closeLog() {
	if cfg.logFile != nil {
		cfg.logFile.Close()
		cfg.logFile = nil
	}
}
