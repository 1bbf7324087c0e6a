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

// Package namelist fills in WPS and WRF namelist templates.
//
// Templates contain placeholder keys that are replaced with values for a
// particular run: YYYY1, MM1, DD1, hh1 and mm1 for the start time, the
// same with suffix 2 for the end time, RD0, RH0 and RM0 for the run length
// in days, hours and minutes, GEOG for the static geography directory and
// hi1, hi2 and hi3 for the history intervals of the three domains.
package namelist

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// Names of the rendered files.
const (
	WPS   = "namelist.wps"
	Input = "namelist.input"
)

//go:embed templates/namelist.wps templates/namelist.input
var templates embed.FS

// Values returns the substitution values for a run from start to end
// lasting periodDays. extra values are added last and override the
// computed ones.
func Values(start, end time.Time, periodDays float64, geogDir string, extra map[string]string) map[string]string {
	v := map[string]string{
		"YYYY1": start.Format("2006"),
		"MM1":   start.Format("01"),
		"DD1":   start.Format("02"),
		"hh1":   start.Format("15"),
		"mm1":   start.Format("04"),
		"YYYY2": end.Format("2006"),
		"MM2":   end.Format("01"),
		"DD2":   end.Format("02"),
		"hh2":   end.Format("15"),
		"mm2":   end.Format("04"),
		"GEOG":  geogDir,
		"RD0":   strconv.Itoa(int(periodDays)),
		"RH0":   strconv.Itoa(int(modulo(periodDays*24, 24))),
		"RM0":   strconv.Itoa(int(modulo(periodDays*24*60, 60))),
		"hi1":   "180",
		"hi2":   "60",
		"hi3":   "60",
	}
	for k, val := range extra {
		v[k] = val
	}
	return v
}

// EndDate returns the end of a run starting at start and lasting periodDays.
func EndDate(start time.Time, periodDays float64) time.Time {
	return start.Add(time.Duration(periodDays * 24 * float64(time.Hour)))
}

func modulo(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	if m < 0 {
		m += b
	}
	return m
}

// Render copies src to dst, replacing every key in values with its value
// in a single pass. Where keys overlap, the longest one wins.
func Render(src io.Reader, dst io.Writer, values map[string]string) error {
	b, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("namelist: reading template: %v", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	oldnew := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		oldnew = append(oldnew, k, values[k])
	}
	if _, err := strings.NewReplacer(oldnew...).WriteString(dst, string(b)); err != nil {
		return fmt.Errorf("namelist: writing: %v", err)
	}
	return nil
}

// RenderTemplate renders the template at src into w. If src is empty or
// does not exist, the built-in template called name (WPS or Input) is
// used instead.
func RenderTemplate(src, name string, w io.Writer, values map[string]string) error {
	if f, err := os.Open(src); err == nil {
		defer f.Close()
		return Render(f, w, values)
	}
	b, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return fmt.Errorf("namelist: no template for %s", name)
	}
	return Render(bytes.NewReader(b), w, values)
}

// RenderFile renders a template as RenderTemplate does into the file dst.
func RenderFile(src, name, dst string, values map[string]string) error {
	var buf bytes.Buffer
	if err := RenderTemplate(src, name, &buf, values); err != nil {
		return err
	}
	return fileutil.WriteAtomic(dst, &buf, false)
}
