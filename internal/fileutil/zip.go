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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZipGlob writes the files in dir matching pattern into a deflated
// archive at zipPath, stored by base name. If removeSources is true the
// archived files are deleted afterwards. It returns the archived paths;
// when nothing matches no archive is created.
func ZipGlob(dir, pattern, zipPath string, removeSources bool) ([]string, error) {
	files, err := Glob(dir, pattern)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("fileutil: creating archive: %v", err)
	}
	w := zip.NewWriter(f)
	for _, name := range files {
		if err := addToZip(w, name); err != nil {
			w.Close()
			f.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("fileutil: writing archive %s: %v", zipPath, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("fileutil: writing archive %s: %v", zipPath, err)
	}
	if removeSources {
		for _, name := range files {
			if err := os.Remove(name); err != nil {
				return files, fmt.Errorf("fileutil: removing archived file: %v", err)
			}
		}
	}
	return files, nil
}

func addToZip(w *zip.Writer, name string) error {
	r, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("fileutil: archiving %s: %v", name, err)
	}
	defer r.Close()
	fi, err := r.Stat()
	if err != nil {
		return fmt.Errorf("fileutil: archiving %s: %v", name, err)
	}
	h, err := zip.FileInfoHeader(fi)
	if err != nil {
		return fmt.Errorf("fileutil: archiving %s: %v", name, err)
	}
	h.Name = filepath.Base(name)
	h.Method = zip.Deflate
	zw, err := w.CreateHeader(h)
	if err != nil {
		return fmt.Errorf("fileutil: archiving %s: %v", name, err)
	}
	if _, err := io.Copy(zw, r); err != nil {
		return fmt.Errorf("fileutil: archiving %s: %v", name, err)
	}
	return nil
}

// Unzip extracts the archive at zipPath into destDir and returns the
// extracted paths.
func Unzip(zipPath, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("fileutil: opening archive: %v", err)
	}
	defer zr.Close()
	if _, err := EnsureDir(destDir); err != nil {
		return nil, err
	}
	root := filepath.Clean(destDir) + string(os.PathSeparator)
	var out []string
	for _, zf := range zr.File {
		dst := filepath.Join(destDir, zf.Name)
		if !strings.HasPrefix(dst, root) {
			return out, fmt.Errorf("fileutil: archive entry %q escapes %s", zf.Name, destDir)
		}
		if zf.FileInfo().IsDir() {
			if _, err := EnsureDir(dst); err != nil {
				return out, err
			}
			continue
		}
		if _, err := EnsureDir(filepath.Dir(dst)); err != nil {
			return out, err
		}
		if err := extract(zf, dst); err != nil {
			return out, err
		}
		out = append(out, dst)
	}
	return out, nil
}

func extract(zf *zip.File, dst string) error {
	r, err := zf.Open()
	if err != nil {
		return fmt.Errorf("fileutil: extracting %s: %v", zf.Name, err)
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fileutil: extracting %s: %v", zf.Name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("fileutil: extracting %s: %v", zf.Name, err)
	}
	return w.Close()
}
