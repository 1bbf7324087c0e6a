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

package wrfrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun/internal/fileutil"
)

// FetchStatus is the terminal state of a single download.
type FetchStatus int

// These are the possible fetch statuses.
const (
	// Failed means every attempt failed.
	Failed FetchStatus = iota
	// Skipped means the destination was already present.
	Skipped
	// FetchedFromCache means the file was copied from the secondary cache.
	FetchedFromCache
	// FetchedFromOrigin means the file was downloaded from its remote locator.
	FetchedFromOrigin
)

func (s FetchStatus) String() string {
	switch s {
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case FetchedFromCache:
		return "cache"
	case FetchedFromOrigin:
		return "origin"
	default:
		return fmt.Sprintf("FetchStatus(%d)", int(s))
	}
}

// FetchOutcome is the result of fetching one WorkItem.
type FetchOutcome struct {
	Item   WorkItem
	Status FetchStatus

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the last error when Status is Failed.
	Err error
}

// SecondaryCache holds previously downloaded files, matched by base name.
type SecondaryCache interface {
	// Get copies the entry called name to the local file dst. It returns
	// ErrNotCached if there is no non-empty entry with that name.
	Get(ctx context.Context, name, dst string) error

	// Put stores the local file src as the entry called name. Readers
	// must never observe a partially written entry.
	Put(ctx context.Context, name, src string) error
}

// Fetcher downloads WorkItems.
type Fetcher struct {
	// Client is used for downloads. If nil, http.DefaultClient is used.
	Client *http.Client

	// Retries is the number of additional attempts after a failed one.
	// Negative values are treated as zero.
	Retries int

	// Delay is the constant wait between attempts.
	Delay time.Duration

	// Overwrite forces a download even when the destination already holds
	// a non-empty file. It has no effect when Cache is set.
	Overwrite bool

	// Cache is an optional secondary cache consulted before the origin.
	// When it is set the destination is not checked for an existing file.
	Cache SecondaryCache

	// Log receives progress messages. If nil, the standard logger is used.
	Log logrus.FieldLogger
}

func (f *Fetcher) log() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

// Fetch makes sure item.LocalPath holds the file at item.RemoteLocator,
// trying up to f.Retries+1 times when the origin fails. Failures of the
// local file system or the cache are not retried.
func (f *Fetcher) Fetch(ctx context.Context, item WorkItem) FetchOutcome {
	out := FetchOutcome{Item: item}
	retries := f.Retries
	if retries < 0 {
		retries = 0
	}
	log := f.log().WithFields(logrus.Fields{
		"url":  item.RemoteLocator,
		"dest": item.LocalPath,
	})

	var last error
	operation := func() error {
		out.Attempts++
		log.WithField("attempt", out.Attempts).Debug("downloading")
		status, err := f.attempt(ctx, item)
		if err != nil {
			last = err
			return err
		}
		out.Status = status
		return nil
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(f.Delay)
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	err := backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt":  out.Attempts,
			"retry_in": d,
		}).Warnf("download failed: %v", err)
	})
	if err != nil && last != nil && err == ctx.Err() {
		// Keep the origin failure when the wait was cut short.
		err = fmt.Errorf("wrfrun: %w; last error: %w", err, last)
	}
	if err != nil {
		out.Status = Failed
		out.Err = err
		log.WithField("attempts", out.Attempts).Errorf("giving up: %v", err)
		return out
	}
	log.WithField("status", out.Status).Info("done")
	return out
}

// attempt performs a single pass of the fetch policy.
func (f *Fetcher) attempt(ctx context.Context, item WorkItem) (FetchStatus, error) {
	if f.Cache == nil {
		if !f.Overwrite && fileutil.NonEmpty(item.LocalPath) {
			return Skipped, nil
		}
		return f.download(ctx, item)
	}

	name := filepath.Base(item.LocalPath)
	if err := f.mkdir(item.LocalPath); err != nil {
		return Failed, err
	}
	err := f.Cache.Get(ctx, name, item.LocalPath)
	if err == nil {
		return FetchedFromCache, nil
	} else if !errors.Is(err, ErrNotCached) {
		return Failed, backoff.Permanent(fmt.Errorf("wrfrun: reading %s from secondary cache: %w", name, err))
	}

	status, err := f.download(ctx, item)
	if err != nil || status == Skipped {
		return status, err
	}
	if err := f.Cache.Put(ctx, name, item.LocalPath); err != nil {
		return Failed, backoff.Permanent(fmt.Errorf("wrfrun: storing %s in secondary cache: %w", name, err))
	}
	return FetchedFromOrigin, nil
}

func (f *Fetcher) mkdir(path string) error {
	if _, err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}

// download retrieves the whole body from the origin and then commits it
// to the destination in one step. If the destination did not exist
// beforehand and another writer creates it first, the result is Skipped.
func (f *Fetcher) download(ctx context.Context, item WorkItem) (FetchStatus, error) {
	if err := f.mkdir(item.LocalPath); err != nil {
		return Failed, err
	}
	_, statErr := os.Lstat(item.LocalPath)
	exclusive := os.IsNotExist(statErr)

	body, err := f.get(ctx, item.RemoteLocator)
	if err != nil {
		return Failed, err
	}
	err = fileutil.WriteAtomic(item.LocalPath, bytes.NewReader(body), exclusive)
	if exclusive && errors.Is(err, fs.ErrExist) {
		f.log().WithField("dest", item.LocalPath).Info(ErrConcurrentWrite.Error())
		return Skipped, nil
	} else if err != nil {
		return Failed, backoff.Permanent(err)
	}
	return FetchedFromOrigin, nil
}

// get returns the body of url. Any failure after the request is built
// is a *TransientFetchError.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("wrfrun: invalid locator: %w", err))
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &TransientFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientFetchError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientFetchError{URL: url, Err: err}
	}
	return body, nil
}
