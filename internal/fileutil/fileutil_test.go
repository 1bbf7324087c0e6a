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

package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "20190820.f000")
	if err := WriteAtomic(dst, strings.NewReader("first"), true); err != nil {
		t.Fatal(err)
	}
	err := WriteAtomic(dst, strings.NewReader("second"), true)
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("expected fs.ErrExist, got %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "first" {
		t.Errorf("exclusive write replaced the file: %q", b)
	}
	if err := WriteAtomic(dst, strings.NewReader("third"), false); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "third" {
		t.Errorf("have %q", b)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
	if !NonEmpty(dst) || NonEmpty(filepath.Join(dir, "missing")) || NonEmpty(dir) {
		t.Error("NonEmpty")
	}
}

func TestGlobs(t *testing.T) {
	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "out")
	writeFiles(t, src, "rsl.out.0000", "rsl.error.0000", "namelist.input")

	copied, err := CopyGlob(src, "namelist.*", dst)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{filepath.Join(dst, "namelist.input")}; !reflect.DeepEqual(copied, want) {
		t.Errorf("copied %v", copied)
	}
	moved, err := MoveGlob(src, "rsl*", dst)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dst, "rsl.error.0000"), filepath.Join(dst, "rsl.out.0000")}
	if !reflect.DeepEqual(moved, want) {
		t.Errorf("moved %v", moved)
	}
	if left, _ := Glob(src, "*"); !reflect.DeepEqual(left, []string{filepath.Join(src, "namelist.input")}) {
		t.Errorf("left %v", left)
	}
	if moved, err := MoveGlob(src, "nothing*", filepath.Join(dst, "never")); err != nil || moved != nil {
		t.Errorf("%v, %v", moved, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "never")); !os.IsNotExist(err) {
		t.Error("destination created with nothing to move")
	}
	if err := RemoveGlob(dst, "rsl*"); err != nil {
		t.Fatal(err)
	}
	if left, _ := Glob(dst, "*"); len(left) != 1 {
		t.Errorf("left %v", left)
	}
}

func TestBackupDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wrf")
	if bck, err := BackupDir(dir); err != nil || bck != "" {
		t.Errorf("missing directory: %q, %v", bck, err)
	}
	if _, err := EnsureDir(filepath.Join(dir, "logs")); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, dir, "namelist.input")
	for i, want := range []string{"0", "1"} {
		bck, err := BackupDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if bck != filepath.Join(dir, BackupPrefix, want) {
			t.Errorf("backup %d in %s", i, bck)
		}
		if _, err := os.Stat(filepath.Join(bck, "namelist.input")); err != nil {
			t.Error(err)
		}
		if _, err := os.Stat(filepath.Join(bck, "logs")); err != nil {
			t.Error(err)
		}
		writeFiles(t, dir, "namelist.input")
		if _, err := EnsureDir(filepath.Join(dir, "logs")); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := os.ReadDir(filepath.Join(dir, BackupPrefix))
	if len(entries) != 2 {
		t.Errorf("backups %v", entries)
	}
}

func TestZip(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, "met_em.d01.2019-08-21_00:00:00.nc", "met_em.d02.2019-08-21_00:00:00.nc", "geo_em.d01.nc")
	zipPath := filepath.Join(t.TempDir(), "run_metgrid.zip")
	files, err := ZipGlob(src, "met_em.d*", zipPath, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("archived %v", files)
	}

	dst := t.TempDir()
	out, err := Unzip(zipPath, dst)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dst, "met_em.d01.2019-08-21_00:00:00.nc"),
		filepath.Join(dst, "met_em.d02.2019-08-21_00:00:00.nc"),
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("extracted %v", out)
	}
	for _, f := range out {
		if b, _ := os.ReadFile(f); string(b) != filepath.Base(f) {
			t.Errorf("%s: %q", f, b)
		}
	}

	t.Run("remove sources", func(t *testing.T) {
		writeFiles(t, src, "rsl.out.0000", "rsl.error.0000")
		if _, err := ZipGlob(src, "rsl*", filepath.Join(src, "real_rsl.zip"), true); err != nil {
			t.Fatal(err)
		}
		if left, _ := Glob(src, "rsl*"); len(left) != 0 {
			t.Errorf("left %v", left)
		}
	})
	t.Run("no match", func(t *testing.T) {
		p := filepath.Join(src, "none.zip")
		if files, err := ZipGlob(src, "wrfout*", p, false); err != nil || files != nil {
			t.Errorf("%v, %v", files, err)
		}
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Error("empty archive created")
		}
	})
	t.Run("escaping entry", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "evil.zip")
		f, err := os.Create(p)
		if err != nil {
			t.Fatal(err)
		}
		w := zip.NewWriter(f)
		zw, err := w.Create("../evil")
		if err != nil {
			t.Fatal(err)
		}
		zw.Write([]byte("x"))
		w.Close()
		f.Close()
		dst := filepath.Join(t.TempDir(), "dst")
		if _, err := Unzip(p, dst); err == nil {
			t.Error("expected an error")
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(dst), "evil")); !os.IsNotExist(err) {
			t.Error("entry written outside the destination")
		}
	})
}
