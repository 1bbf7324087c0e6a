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

// Package fileutil holds the file system helpers shared by the
// download and model stages.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// BackupPrefix is the name of the directory that BackupDir moves
// existing files into.
const BackupPrefix = "__backup"

// NonEmpty reports whether path is a regular file with nonzero size.
func NonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// EnsureDir creates path and any missing parents and returns path.
func EnsureDir(path string) (string, error) {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return path, fmt.Errorf("fileutil: creating directory: %v", err)
	}
	return path, nil
}

// WriteAtomic writes the contents of r to dst through a temporary file
// in the same directory, so readers never see a partially written dst.
// If exclusive is true and dst already exists, the temporary file is
// discarded and the returned error satisfies errors.Is(err, fs.ErrExist).
// Otherwise an existing dst is replaced.
func WriteAtomic(dst string, r io.Reader, exclusive bool) error {
	dir, base := filepath.Split(dst)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return fmt.Errorf("fileutil: creating temporary file for %s: %w", dst, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("fileutil: writing %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fileutil: writing %s: %w", dst, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("fileutil: writing %s: %w", dst, err)
	}
	if exclusive {
		// A hard link fails if dst exists, unlike a rename.
		if err := os.Link(tmp.Name(), dst); err != nil {
			return fmt.Errorf("fileutil: committing %s: %w", dst, err)
		}
		return nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("fileutil: committing %s: %w", dst, err)
	}
	return nil
}

// CopyFile copies src to dst, replacing dst if it exists.
func CopyFile(src, dst string) error {
	r, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fileutil: copying file: %w", err)
	}
	defer r.Close()
	return WriteAtomic(dst, r, false)
}

// Glob returns the sorted files in dir matching pattern.
func Glob(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("fileutil: matching %s in %s: %v", pattern, dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// MoveGlob moves the files in srcDir matching pattern into destDir,
// creating destDir if necessary. It returns the new paths.
func MoveGlob(srcDir, pattern, destDir string) ([]string, error) {
	files, err := Glob(srcDir, pattern)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	if _, err := EnsureDir(destDir); err != nil {
		return nil, err
	}
	var moved []string
	for _, f := range files {
		dst := filepath.Join(destDir, filepath.Base(f))
		if err := move(f, dst); err != nil {
			return moved, err
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

// move renames src to dst, falling back to copy and delete when they
// are on different devices.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("fileutil: moving %s: %v", src, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("fileutil: moving directory %s to %s across devices is not supported", src, dst)
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// CopyGlob copies the files in srcDir matching pattern into destDir,
// creating destDir if necessary. It returns the new paths.
func CopyGlob(srcDir, pattern, destDir string) ([]string, error) {
	files, err := Glob(srcDir, pattern)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	if _, err := EnsureDir(destDir); err != nil {
		return nil, err
	}
	var copied []string
	for _, f := range files {
		dst := filepath.Join(destDir, filepath.Base(f))
		if err := CopyFile(f, dst); err != nil {
			return copied, err
		}
		copied = append(copied, dst)
	}
	return copied, nil
}

// RemoveGlob deletes the files in dir matching pattern.
func RemoveGlob(dir, pattern string) error {
	files, err := Glob(dir, pattern)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.RemoveAll(f); err != nil {
			return fmt.Errorf("fileutil: removing %s: %v", f, err)
		}
	}
	return nil
}

// IncrementedDirPath returns the first path that does not exist, starting
// from path and incrementing a numeric base name. If the base name of an
// existing path is not a number, the search continues beneath it from 0:
// /a/b/__backup becomes /a/b/__backup/0, then /a/b/__backup/1 and so on.
func IncrementedDirPath(path string) string {
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		if n, err := strconv.Atoi(filepath.Base(path)); err == nil {
			path = filepath.Join(filepath.Dir(path), strconv.Itoa(n+1))
		} else {
			path = filepath.Join(path, "0")
		}
	}
}

// BackupDir moves everything in path other than earlier backups into a
// new numbered directory path/__backup/N, starting from 0. It returns the backup
// directory, or "" if there was nothing to back up.
func BackupDir(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("fileutil: backing up %s: %v", path, err)
	}
	var files []string
	for _, e := range entries {
		if !strings.Contains(e.Name(), BackupPrefix) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return "", nil
	}
	bck := IncrementedDirPath(filepath.Join(path, BackupPrefix, "0"))
	if _, err := EnsureDir(bck); err != nil {
		return "", err
	}
	for _, f := range files {
		if err := os.Rename(filepath.Join(path, f), filepath.Join(bck, f)); err != nil {
			return bck, fmt.Errorf("fileutil: backing up %s: %v", f, err)
		}
	}
	return bck, nil
}
